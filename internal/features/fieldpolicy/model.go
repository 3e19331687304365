package fieldpolicy

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ViewType names the rendering context a visibility decision applies to.
type ViewType string

const (
	ViewList   ViewType = "list"
	ViewDetail ViewType = "detail"
	ViewForm   ViewType = "form"
)

func (v ViewType) Valid() bool {
	return v == ViewList || v == ViewDetail || v == ViewForm
}

// FieldPolicy restricts one field of one record type for one profile.
// Fields with no policy row are fully visible; a row exists to take
// something away or to make visibility conditional.
type FieldPolicy struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProfileID  primitive.ObjectID `bson:"profile_id" json:"profile_id"`
	ModuleName string             `bson:"module_name" json:"module_name"`
	ModelName  string             `bson:"model_name" json:"model_name"`
	FieldName  string             `bson:"field_name" json:"field_name"`

	CanView   bool `bson:"can_view" json:"can_view"`
	CanEdit   bool `bson:"can_edit" json:"can_edit"`
	CanFilter bool `bson:"can_filter" json:"can_filter"`
	InList    bool `bson:"in_list" json:"in_list"`
	InDetail  bool `bson:"in_detail" json:"in_detail"`
	InForm    bool `bson:"in_form" json:"in_form"`

	// Condition makes visibility depend on the record itself: the field is
	// shown only when every key of the map equals the record's value.
	Condition map[string]interface{} `bson:"condition,omitempty" json:"condition,omitempty"`

	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AllowsView reports whether the policy admits the field in the given view.
func (p *FieldPolicy) AllowsView(view ViewType) bool {
	if !p.CanView {
		return false
	}
	switch view {
	case ViewList:
		return p.InList
	case ViewDetail:
		return p.InDetail
	case ViewForm:
		return p.InForm
	}
	return false
}
