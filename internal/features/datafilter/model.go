package datafilter

import (
	"time"

	"estate-crm/pkg/condition"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Kind string

const (
	KindInclude     Kind = "include"
	KindExclude     Kind = "exclude"
	KindConditional Kind = "conditional"
)

func (k Kind) Valid() bool {
	return k == KindInclude || k == KindExclude || k == KindConditional
}

// DataFilter narrows the rows of one record type for one profile. Its
// Conditions map uses the attribute-path grammar (`budget_min__gte`,
// `property_type__name__in`); Parsed holds the compiled form, refreshed on
// every write so reads never re-parse.
type DataFilter struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProfileID  primitive.ObjectID `bson:"profile_id" json:"profile_id"`
	ModuleName string             `bson:"module_name" json:"module_name"`
	ModelName  string             `bson:"model_name" json:"model_name"`

	Name       string                 `bson:"name" json:"name"`
	Kind       Kind                   `bson:"kind" json:"kind"`
	Order      int                    `bson:"order" json:"order"`
	Conditions map[string]interface{} `bson:"conditions" json:"conditions"`
	Parsed     []condition.Condition  `bson:"parsed,omitempty" json:"-"`

	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
