package dropdown

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DropdownRestriction bounds which choice values a profile may see and
// submit for one field of a module. Options come from the source model's
// records; allowed/restricted lists and the extra predicate map prune them.
type DropdownRestriction struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProfileID  primitive.ObjectID `bson:"profile_id" json:"profile_id"`
	ModuleName string             `bson:"module_name" json:"module_name"`
	FieldName  string             `bson:"field_name" json:"field_name"`

	SourceModel  string `bson:"source_model" json:"source_model"`
	SourceField  string `bson:"source_field" json:"source_field"`
	DisplayField string `bson:"display_field" json:"display_field"`

	AllowedValues    []string               `bson:"allowed_values,omitempty" json:"allowed_values,omitempty"`
	RestrictedValues []string               `bson:"restricted_values,omitempty" json:"restricted_values,omitempty"`
	Conditions       map[string]interface{} `bson:"conditions,omitempty" json:"conditions,omitempty"`
	MultiSelect      bool                   `bson:"multi_select" json:"multi_select"`

	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Option is one selectable value presented to the user.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
