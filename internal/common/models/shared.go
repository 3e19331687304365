package models

import "sort"

type ContextKey string

const (
	PrincipalKey   ContextKey = "principal"
	RequestMetaKey ContextKey = "request_meta"
)

// RequestMeta carries the ambient request attributes recorded on audit entries.
// It is set once by the entry-point middleware and read-only afterwards.
type RequestMeta struct {
	IP        string
	UserAgent string
	SessionID string
	Source    string // "api" for requests, "job:<name>" for background work
}

// PermissionLevel is the ordered 1..4 permission ladder. A level subsumes
// every lower level of the same module.
type PermissionLevel int

const (
	LevelView   PermissionLevel = 1
	LevelEdit   PermissionLevel = 2
	LevelCreate PermissionLevel = 3
	LevelDelete PermissionLevel = 4
)

// Levels returns the canonical level ordering. Never extended at runtime.
func Levels() []PermissionLevel {
	return []PermissionLevel{LevelView, LevelEdit, LevelCreate, LevelDelete}
}

func (l PermissionLevel) Valid() bool {
	return l >= LevelView && l <= LevelDelete
}

func (l PermissionLevel) String() string {
	switch l {
	case LevelView:
		return "view"
	case LevelEdit:
		return "edit"
	case LevelCreate:
		return "create"
	case LevelDelete:
		return "delete"
	}
	return "unknown"
}

// PermissionGrant is one effective permission held by a principal.
type PermissionGrant struct {
	Module string          `json:"module" bson:"module"`
	Code   string          `json:"code" bson:"code"`
	Level  PermissionLevel `json:"level" bson:"level"`
}

// Principal is the per-request snapshot of the authenticated subject and the
// permissions of its bound profile. It is resolved once by the auth
// middleware, stored on the request context and never mutated afterwards.
type Principal struct {
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	Superuser   bool              `json:"superuser"`
	Active      bool              `json:"active"`
	ProfileID   string            `json:"profile_id,omitempty"`
	ProfileName string            `json:"profile_name,omitempty"`
	Team        string            `json:"team,omitempty"`
	Grants      []PermissionGrant `json:"grants,omitempty"`
}

// HasLevel reports whether the principal may perform an operation that
// requires the given level on the module. Superusers bypass every check;
// otherwise any grant of the module with level >= required suffices.
func (p *Principal) HasLevel(module string, level PermissionLevel) bool {
	if p == nil || !p.Active {
		return false
	}
	if p.Superuser {
		return true
	}
	for _, g := range p.Grants {
		if g.Module == module && g.Level >= level {
			return true
		}
	}
	return false
}

// HasAction reports whether the principal holds the named permission code.
func (p *Principal) HasAction(module, code string) bool {
	if p == nil || !p.Active {
		return false
	}
	if p.Superuser {
		return true
	}
	for _, g := range p.Grants {
		if g.Module == module && g.Code == code {
			return true
		}
	}
	return false
}

// Modules returns the distinct module names the principal holds any grant on.
func (p *Principal) Modules() []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, g := range p.Grants {
		if !seen[g.Module] {
			seen[g.Module] = true
			names = append(names, g.Module)
		}
	}
	sort.Strings(names)
	return names
}

type AuditAction string

const (
	AuditActionCreate            AuditAction = "create"
	AuditActionUpdate            AuditAction = "update"
	AuditActionDelete            AuditAction = "delete"
	AuditActionStatusChange      AuditAction = "status_change"
	AuditActionAssignmentChange  AuditAction = "assignment_change"
	AuditActionPriorityChange    AuditAction = "priority_change"
	AuditActionTemperatureChange AuditAction = "temperature_change"
	AuditActionScoreChange       AuditAction = "score_change"
	AuditActionConversion        AuditAction = "conversion"
	AuditActionBulk              AuditAction = "bulk_operation"
	AuditActionLogin             AuditAction = "login"
	AuditActionPurge             AuditAction = "purge"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Change holds the before/after values of one field mutation.
type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeNumber      FieldType = "number"
	FieldTypeDate        FieldType = "date"
	FieldTypeBoolean     FieldType = "boolean"
	FieldTypeLookup      FieldType = "lookup"
	FieldTypeEmail       FieldType = "email"
	FieldTypePhone       FieldType = "phone"
	FieldTypeTextArea    FieldType = "textarea"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
	FieldTypeCurrency    FieldType = "currency"
)

type SelectOption struct {
	Label string `json:"label" bson:"label"`
	Value string `json:"value" bson:"value"`
}

// Log is the shape of process-log documents written by the async zap sink.
type Log struct {
	Message      string `bson:"message" json:"message"`
	IpAddress    string `bson:"ip_address" json:"ip_address"`
	Actor        string `bson:"actor,omitempty" json:"actor,omitempty"`
	Caller       string `bson:"caller,omitempty" json:"caller,omitempty"`
	LogLevelId   int    `bson:"log_level_id" json:"log_level_id"`
	CreatedOnUtc int64  `bson:"created_on_utc" json:"created_on_utc"`
}
