package audit

import (
	"time"

	common_models "estate-crm/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditEntry is one immutable line of the audit trail. Target and actor
// carry denormalized display backups so the entry stays readable after the
// record or the user it refers to is deleted.
type AuditEntry struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`

	ModuleName string              `bson:"module_name" json:"module_name"`
	ModelName  string              `bson:"model_name" json:"model_name"`
	TargetID   *primitive.ObjectID `bson:"target_id,omitempty" json:"target_id,omitempty"`

	TargetIDBackup      string `bson:"target_id_backup" json:"target_id_backup"`
	TargetDisplayBackup string `bson:"target_display_backup" json:"target_display_backup"`

	Action      common_models.AuditAction `bson:"action" json:"action"`
	Field       string                    `bson:"field,omitempty" json:"field,omitempty"`
	OldValue    string                    `bson:"old_value,omitempty" json:"old_value,omitempty"`
	NewValue    string                    `bson:"new_value,omitempty" json:"new_value,omitempty"`
	Description string                    `bson:"description" json:"description"`

	ActorID            *primitive.ObjectID `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	ActorDisplayBackup string              `bson:"actor_display_backup" json:"actor_display_backup"`

	IP        string `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	SessionID string `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Source    string `bson:"source" json:"source"`

	Severity  common_models.Severity `bson:"severity" json:"severity"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
}

// Query is the filter set accepted by trail listings and exports.
type Query struct {
	ModuleName string
	ModelName  string
	Action     string
	Severity   string
	ActorID    string
	TargetID   string
	Search     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

func (q Query) Limit() int {
	if q.PageSize <= 0 || q.PageSize > 200 {
		return 50
	}
	return q.PageSize
}

func (q Query) Skip() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit()
}
