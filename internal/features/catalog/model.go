package catalog

import (
	"time"

	common_models "estate-crm/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Module is a governed application area. Permissions, field policies,
// data filters and scopes all hang off a module by name.
type Module struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Label     string             `bson:"label" json:"label"`
	Order     int                `bson:"order" json:"order"`
	Active    bool               `bson:"active" json:"active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Permission is one grantable capability of a module. Codes follow the
// "<level> <module label>" convention produced by the seeder.
type Permission struct {
	ID         primitive.ObjectID            `bson:"_id,omitempty" json:"id"`
	ModuleName string                        `bson:"module_name" json:"module_name"`
	Code       string                        `bson:"code" json:"code"`
	Level      common_models.PermissionLevel `bson:"level" json:"level"`
	Active     bool                          `bson:"active" json:"active"`
	CreatedAt  time.Time                     `bson:"created_at" json:"created_at"`
}

// ModuleField is the introspection shape returned to policy editors.
type ModuleField struct {
	Name        string `json:"name"`
	VerboseName string `json:"verbose_name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	HasChoices  bool   `json:"has_choices"`
}

// LevelInfo pairs a permission level with its display name.
type LevelInfo struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
}
