package profile

import (
	"time"

	common_models "estate-crm/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PermissionRef is one catalog permission embedded in a profile. The module
// name and level are denormalized so permission checks never join back to
// the catalog.
type PermissionRef struct {
	PermissionID primitive.ObjectID            `bson:"permission_id" json:"permission_id"`
	ModuleName   string                        `bson:"module_name" json:"module_name"`
	Code         string                        `bson:"code" json:"code"`
	Level        common_models.PermissionLevel `bson:"level" json:"level"`
}

// Rule is an attached business rule. Its conditions and actions are opaque
// to the access-control core; nothing evaluates them yet.
type Rule struct {
	Name       string                 `bson:"name" json:"name"`
	Conditions map[string]interface{} `bson:"conditions,omitempty" json:"conditions,omitempty"`
	Actions    map[string]interface{} `bson:"actions,omitempty" json:"actions,omitempty"`
	Active     bool                   `bson:"active" json:"active"`
}

// Profile bundles the permissions and policy attachments granted to the
// users bound to it.
type Profile struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Permissions []PermissionRef    `bson:"permissions" json:"permissions"`
	Rules       []Rule             `bson:"rules,omitempty" json:"rules,omitempty"`
	IsSystem    bool               `bson:"is_system" json:"is_system"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// Grants flattens the embedded permission refs into the snapshot form
// carried on the request principal.
func (p *Profile) Grants() []common_models.PermissionGrant {
	grants := make([]common_models.PermissionGrant, 0, len(p.Permissions))
	for _, ref := range p.Permissions {
		grants = append(grants, common_models.PermissionGrant{
			Module: ref.ModuleName,
			Code:   ref.Code,
			Level:  ref.Level,
		})
	}
	return grants
}

// Binding ties a user to at most one profile. A user without a binding, or
// a binding without a profile, has no permissions anywhere.
type Binding struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID  `bson:"user_id" json:"user_id"`
	ProfileID    *primitive.ObjectID `bson:"profile_id,omitempty" json:"profile_id,omitempty"`
	Active       bool                `bson:"active" json:"active"`
	Superuser    bool                `bson:"superuser" json:"superuser"`
	EmployeeName string              `bson:"employee_name,omitempty" json:"employee_name,omitempty"`
	Team         string              `bson:"team,omitempty" json:"team,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}
