package datascope

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Kind string

const (
	KindAll      Kind = "all"
	KindOwn      Kind = "own"
	KindAssigned Kind = "assigned"
	KindTeam     Kind = "team"
	KindFiltered Kind = "filtered"
	KindCustom   Kind = "custom"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAll, KindOwn, KindAssigned, KindTeam, KindFiltered, KindCustom:
		return true
	}
	return false
}

// DataScope bounds which rows of a module a profile may reach, relative to
// the requesting principal. Config carries kind-specific settings:
// `user_field` for own/assigned, `team_field` and `user_attribute` for team,
// the `filters` map for filtered, the `script` source for custom.
type DataScope struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	ProfileID  primitive.ObjectID     `bson:"profile_id" json:"profile_id"`
	ModuleName string                 `bson:"module_name" json:"module_name"`
	Kind       Kind                   `bson:"kind" json:"kind"`
	Config     map[string]interface{} `bson:"config,omitempty" json:"config,omitempty"`
	Active     bool                   `bson:"active" json:"active"`
	CreatedAt  time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time              `bson:"updated_at" json:"updated_at"`
}
