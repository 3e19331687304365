package dropdown

import (
	"context"
	"errors"
	"fmt"
	"time"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"
	"estate-crm/pkg/condition"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrInputRejected marks a submitted value that falls outside the options
// the principal is allowed to pick.
var ErrInputRejected = errors.New("value not permitted for this field")

const maxChoices = 100

// RecordSource loads the records of a source model so options can be built
// from live data. The record repository satisfies it; declared here to keep
// this package free of a record-feature import.
type RecordSource interface {
	ListAll(ctx context.Context, moduleName, modelName string) ([]map[string]interface{}, error)
}

type DropdownService interface {
	Upsert(ctx context.Context, restriction *DropdownRestriction) error
	ListOptions(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string) ([]Option, error)
	ValidateInput(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string, values []string) error
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type DropdownServiceImpl struct {
	DropdownRepo DropdownRepository
	Registry     *registry.Registry
	Records      RecordSource
	Log          *zap.Logger
}

func NewDropdownService(dropdownRepo DropdownRepository, reg *registry.Registry, records RecordSource, log *zap.Logger) DropdownService {
	return &DropdownServiceImpl{
		DropdownRepo: dropdownRepo,
		Registry:     reg,
		Records:      records,
		Log:          log,
	}
}

func (s *DropdownServiceImpl) Upsert(ctx context.Context, restriction *DropdownRestriction) error {
	now := time.Now()
	restriction.UpdatedAt = now
	if restriction.CreatedAt.IsZero() {
		restriction.CreatedAt = now
	}
	return s.DropdownRepo.Upsert(ctx, restriction)
}

// ListOptions resolves the choice values the principal may pick for a
// field. Without a restriction the declared choices (or the full source
// model) are returned; with one, its predicate, allowed list and restricted
// list prune the set in that order. At most 100 options are returned.
func (s *DropdownServiceImpl) ListOptions(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string) ([]Option, error) {
	desc, ok := s.Registry.Lookup(moduleName, modelName)
	if !ok {
		return nil, fmt.Errorf("unknown record type %s/%s", moduleName, modelName)
	}
	field, ok := desc.Field(fieldName)
	if !ok {
		return nil, fmt.Errorf("unknown field %q on %s/%s", fieldName, moduleName, modelName)
	}

	restriction, err := s.restrictionFor(ctx, principal, moduleName, fieldName)
	if err != nil {
		return nil, err
	}

	options, err := s.baseOptions(ctx, field, restriction)
	if err != nil {
		return nil, err
	}
	if restriction == nil {
		return cap100(options), nil
	}

	options = s.applyLists(options, restriction)
	return cap100(options), nil
}

// ValidateInput rejects submitted values that are not among the options the
// principal may pick. Fields without declared choices accept anything.
func (s *DropdownServiceImpl) ValidateInput(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string, values []string) error {
	desc, ok := s.Registry.Lookup(moduleName, modelName)
	if !ok {
		return fmt.Errorf("unknown record type %s/%s", moduleName, modelName)
	}
	field, ok := desc.Field(fieldName)
	if !ok {
		return fmt.Errorf("unknown field %q on %s/%s", fieldName, moduleName, modelName)
	}
	if !field.HasChoices() {
		return nil
	}
	if principal != nil && principal.Superuser {
		return nil
	}

	restriction, err := s.restrictionFor(ctx, principal, moduleName, fieldName)
	if err != nil {
		return err
	}
	// A lookup whose source model has no descriptor cannot be enumerated;
	// without an authored restriction it stays free input.
	if restriction == nil && len(field.Choices) == 0 && field.Lookup != nil {
		if _, ok := s.Registry.LookupModel(field.Lookup.Model); !ok {
			return nil
		}
	}

	options, err := s.ListOptions(ctx, principal, moduleName, modelName, fieldName)
	if err != nil {
		return err
	}
	permitted := make(map[string]bool, len(options))
	for _, o := range options {
		permitted[o.Value] = true
	}
	for _, v := range values {
		if !permitted[v] {
			return fmt.Errorf("%w: %q on field %s", ErrInputRejected, v, fieldName)
		}
	}
	return nil
}

func (s *DropdownServiceImpl) restrictionFor(ctx context.Context, principal *common_models.Principal, moduleName, fieldName string) (*DropdownRestriction, error) {
	if principal == nil || principal.Superuser || principal.ProfileID == "" {
		return nil, nil
	}
	profileID, err := primitive.ObjectIDFromHex(principal.ProfileID)
	if err != nil {
		return nil, nil
	}
	return s.DropdownRepo.FindActive(ctx, profileID, moduleName, fieldName)
}

// baseOptions builds the unpruned option set: declared select choices, or
// records of the source model projected to (value, label) pairs.
func (s *DropdownServiceImpl) baseOptions(ctx context.Context, field registry.FieldDef, restriction *DropdownRestriction) ([]Option, error) {
	if len(field.Choices) > 0 {
		options := make([]Option, 0, len(field.Choices))
		for _, c := range field.Choices {
			options = append(options, Option{Value: c.Value, Label: c.Label})
		}
		return options, nil
	}

	sourceModel := ""
	sourceField := ""
	displayField := ""
	if field.Lookup != nil {
		sourceModel = field.Lookup.Model
		sourceField = field.Lookup.ValueField
		displayField = field.Lookup.DisplayField
	}
	if restriction != nil {
		if restriction.SourceModel != "" {
			sourceModel = restriction.SourceModel
		}
		if restriction.SourceField != "" {
			sourceField = restriction.SourceField
		}
		if restriction.DisplayField != "" {
			displayField = restriction.DisplayField
		}
	}
	if sourceModel == "" {
		return nil, nil
	}

	sourceDesc, ok := s.Registry.LookupModel(sourceModel)
	if !ok {
		if restriction == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("unknown dropdown source model %q", sourceModel)
	}
	if sourceField == "" {
		sourceField = sourceDesc.DisplayField
	}
	if displayField == "" {
		displayField = sourceDesc.DisplayField
	}

	records, err := s.Records.ListAll(ctx, sourceDesc.Module, sourceDesc.Model)
	if err != nil {
		return nil, err
	}

	conditions := s.parsedConditions(restriction)

	seen := make(map[string]bool)
	var options []Option
	for _, rec := range records {
		if conditions != nil && !condition.MatchesAll(conditions, rec) {
			continue
		}
		value := stringAttr(rec, sourceField)
		if value == "" || seen[value] {
			continue
		}
		label := stringAttr(rec, displayField)
		if label == "" {
			label = value
		}
		seen[value] = true
		options = append(options, Option{Value: value, Label: label})
	}
	return options, nil
}

func (s *DropdownServiceImpl) parsedConditions(restriction *DropdownRestriction) []condition.Condition {
	if restriction == nil || len(restriction.Conditions) == 0 {
		return nil
	}
	conds, err := condition.ParseMap(restriction.Conditions)
	if err != nil {
		s.Log.Warn("unparseable dropdown restriction conditions, ignoring them",
			zap.String("module", restriction.ModuleName),
			zap.String("field", restriction.FieldName),
			zap.Error(err))
		return nil
	}
	return conds
}

// applyLists intersects with the allowed list and subtracts the restricted
// list. An empty allowed list admits everything the predicate admitted.
func (s *DropdownServiceImpl) applyLists(options []Option, restriction *DropdownRestriction) []Option {
	allowed := make(map[string]bool, len(restriction.AllowedValues))
	for _, v := range restriction.AllowedValues {
		allowed[v] = true
	}
	restricted := make(map[string]bool, len(restriction.RestrictedValues))
	for _, v := range restriction.RestrictedValues {
		restricted[v] = true
	}

	out := options[:0]
	for _, o := range options {
		if len(allowed) > 0 && !allowed[o.Value] {
			continue
		}
		if restricted[o.Value] {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *DropdownServiceImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return s.DropdownRepo.DeleteByProfileID(ctx, profileID)
}

func cap100(options []Option) []Option {
	if len(options) > maxChoices {
		return options[:maxChoices]
	}
	return options
}

func stringAttr(record map[string]interface{}, field string) string {
	v, ok := record[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
