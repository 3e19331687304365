// Package registry is the descriptor registry: it maps a (module, model)
// pair to the declared fields of the record type, the attribute paths the
// filter grammar may traverse, the tracked audit fields and the ownership
// attributes used by data scopes. It replaces reflection-based model
// introspection with explicit per-type capability tables.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"estate-crm/internal/common/models"
)

// LookupDef describes a relation field: which model it points at, which
// field carries the stored value and which one is shown to users.
type LookupDef struct {
	Model        string `json:"model" bson:"model"`
	ValueField   string `json:"value_field" bson:"value_field"`
	DisplayField string `json:"display_field" bson:"display_field"`
}

type FieldDef struct {
	Name     string                `json:"name" bson:"name"`
	Label    string                `json:"label" bson:"label"`
	Type     models.FieldType      `json:"type" bson:"type"`
	Required bool                  `json:"required" bson:"required"`
	Choices  []models.SelectOption `json:"choices,omitempty" bson:"choices,omitempty"`
	Lookup   *LookupDef            `json:"lookup,omitempty" bson:"lookup,omitempty"`
}

func (f FieldDef) HasChoices() bool {
	return len(f.Choices) > 0 || f.Lookup != nil
}

// Descriptor declares one record type.
type Descriptor struct {
	Module string
	Model  string

	Fields []FieldDef

	// TrackedFields are audited on every mutation, in this order.
	TrackedFields []string

	// DisplayField names the attribute used for human-readable backups.
	DisplayField string

	// Ownership attributes consumed by data scopes.
	OwnerField    string // defaults to created_by
	AssignedField string // defaults to assigned_to
	TeamField     string
}

func (d *Descriptor) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// FieldNames returns the declared field names in declaration order.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// HasPath reports whether an attribute path from the filter grammar is
// resolvable on this record type: the head must be a declared field, and
// only lookup fields admit one further segment (the related display or
// value attribute). Anything else is a malformed predicate; the caller
// skips the owning policy item.
func (d *Descriptor) HasPath(path []string) bool {
	if len(path) == 0 {
		return false
	}
	field, ok := d.Field(path[0])
	if !ok {
		return false
	}
	switch len(path) {
	case 1:
		return true
	case 2:
		return field.Type == models.FieldTypeLookup
	}
	return false
}

// Display extracts the human-readable identity of a record.
func (d *Descriptor) Display(record map[string]interface{}) string {
	if record == nil {
		return ""
	}
	if v, ok := record[d.DisplayField]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Key identifies the descriptor within a registry.
func (d *Descriptor) Key() string {
	return d.Module + "." + strings.ToLower(d.Model)
}

// Registry is a process-wide, read-mostly capability table.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*Descriptor
}

func New() *Registry {
	return &Registry{byKey: make(map[string]*Descriptor)}
}

func (r *Registry) Register(d *Descriptor) error {
	if d.Module == "" || d.Model == "" {
		return fmt.Errorf("descriptor requires module and model names")
	}
	if d.OwnerField == "" {
		d.OwnerField = "created_by"
	}
	if d.AssignedField == "" {
		d.AssignedField = "assigned_to"
	}
	if d.DisplayField == "" {
		d.DisplayField = "name"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[d.Key()]; exists {
		return fmt.Errorf("descriptor %s already registered", d.Key())
	}
	r.byKey[d.Key()] = d
	return nil
}

func (r *Registry) Lookup(module, model string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[module+"."+strings.ToLower(model)]
	return d, ok
}

// LookupModel finds a descriptor by model name alone. Used by dropdown
// restrictions, whose source model may belong to another module.
func (r *Registry) LookupModel(model string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lower := strings.ToLower(model)
	for _, d := range r.byKey {
		if strings.ToLower(d.Model) == lower {
			return d, true
		}
	}
	return nil, false
}

// Models lists the descriptors declared for one module, sorted by model name.
func (r *Registry) Models(module string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, d := range r.byKey {
		if d.Module == module {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Default returns the registry seeded with the real-estate record types.
func Default() *Registry {
	r := New()
	for _, d := range defaultDescriptors() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func defaultDescriptors() []*Descriptor {
	leadStatus := []models.SelectOption{
		{Label: "New", Value: "New"}, {Label: "Contacted", Value: "Contacted"},
		{Label: "Qualified", Value: "Qualified"}, {Label: "Lost", Value: "Lost"},
		{Label: "Converted", Value: "Converted"},
	}
	priorities := []models.SelectOption{
		{Label: "Low", Value: "Low"}, {Label: "Medium", Value: "Medium"}, {Label: "High", Value: "High"},
	}
	temperatures := []models.SelectOption{
		{Label: "Cold", Value: "Cold"}, {Label: "Warm", Value: "Warm"}, {Label: "Hot", Value: "Hot"},
	}
	propertyStatus := []models.SelectOption{
		{Label: "Available", Value: "Available"}, {Label: "Reserved", Value: "Reserved"}, {Label: "Sold", Value: "Sold"},
	}

	return []*Descriptor{
		{
			Module: "leads", Model: "Lead", DisplayField: "full_name",
			Fields: []FieldDef{
				{Name: "full_name", Label: "Full Name", Type: models.FieldTypeText, Required: true},
				{Name: "mobile", Label: "Mobile", Type: models.FieldTypePhone},
				{Name: "email", Label: "Email", Type: models.FieldTypeEmail},
				{Name: "status", Label: "Status", Type: models.FieldTypeSelect, Choices: leadStatus},
				{Name: "priority", Label: "Priority", Type: models.FieldTypeSelect, Choices: priorities},
				{Name: "temperature", Label: "Temperature", Type: models.FieldTypeSelect, Choices: temperatures},
				{Name: "score", Label: "Score", Type: models.FieldTypeNumber},
				{Name: "budget_min", Label: "Budget Min", Type: models.FieldTypeCurrency},
				{Name: "budget_max", Label: "Budget Max", Type: models.FieldTypeCurrency},
				{Name: "region", Label: "Region", Type: models.FieldTypeText},
				{Name: "notes", Label: "Notes", Type: models.FieldTypeTextArea},
				{Name: "assigned_to", Label: "Assigned To", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "User", ValueField: "id", DisplayField: "username"}},
				{Name: "created_by", Label: "Created By", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "User", ValueField: "id", DisplayField: "username"}},
			},
			TrackedFields: []string{"status", "assigned_to", "priority", "temperature", "score"},
		},
		{
			Module: "property", Model: "Property", DisplayField: "name",
			Fields: []FieldDef{
				{Name: "name", Label: "Name", Type: models.FieldTypeText, Required: true},
				{Name: "region", Label: "Region", Type: models.FieldTypeText},
				{Name: "total_price", Label: "Total Price", Type: models.FieldTypeCurrency},
				{Name: "owner_phone", Label: "Owner Phone", Type: models.FieldTypePhone},
				{Name: "status", Label: "Status", Type: models.FieldTypeSelect, Choices: propertyStatus},
				{Name: "property_type", Label: "Property Type", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "PropertyType", ValueField: "name", DisplayField: "name"}},
				{Name: "assigned_to", Label: "Assigned To", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "User", ValueField: "id", DisplayField: "username"}},
				{Name: "created_by", Label: "Created By", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "User", ValueField: "id", DisplayField: "username"}},
			},
			TrackedFields: []string{"status", "assigned_to", "total_price"},
		},
		{
			Module: "property", Model: "PropertyType", DisplayField: "name",
			Fields: []FieldDef{
				{Name: "name", Label: "Name", Type: models.FieldTypeText, Required: true},
				{Name: "active", Label: "Active", Type: models.FieldTypeBoolean},
			},
			TrackedFields: []string{"name"},
		},
		{
			Module: "projects", Model: "Project", DisplayField: "name",
			Fields: []FieldDef{
				{Name: "name", Label: "Name", Type: models.FieldTypeText, Required: true},
				{Name: "developer", Label: "Developer", Type: models.FieldTypeText},
				{Name: "region", Label: "Region", Type: models.FieldTypeText},
				{Name: "status", Label: "Status", Type: models.FieldTypeSelect, Choices: []models.SelectOption{
					{Label: "Planned", Value: "Planned"}, {Label: "Under Construction", Value: "Under Construction"},
					{Label: "Delivered", Value: "Delivered"},
				}},
				{Name: "assigned_to", Label: "Assigned To", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "User", ValueField: "id", DisplayField: "username"}},
				{Name: "created_by", Label: "Created By", Type: models.FieldTypeLookup,
					Lookup: &LookupDef{Model: "User", ValueField: "id", DisplayField: "username"}},
			},
			TrackedFields: []string{"status", "assigned_to"},
		},
	}
}
