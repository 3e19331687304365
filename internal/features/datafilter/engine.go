package datafilter

import (
	"context"
	"fmt"
	"time"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"
	"estate-crm/pkg/condition"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type DataFilterService interface {
	Save(ctx context.Context, filter *DataFilter) error
	Delete(ctx context.Context, id string) error
	FiltersForProfile(ctx context.Context, profileID string) ([]DataFilter, error)
	ActiveFilterNames(ctx context.Context, principal *common_models.Principal, moduleName, modelName string) ([]string, error)
	Apply(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error)
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type DataFilterServiceImpl struct {
	FilterRepo DataFilterRepository
	Registry   *registry.Registry
	Log        *zap.Logger
}

func NewDataFilterService(filterRepo DataFilterRepository, reg *registry.Registry, log *zap.Logger) DataFilterService {
	return &DataFilterServiceImpl{
		FilterRepo: filterRepo,
		Registry:   reg,
		Log:        log,
	}
}

// Save validates the filter strictly and persists it with its parsed form.
// Authoring is fail-closed: a filter that cannot be fully parsed against the
// record type is rejected, unlike evaluation which skips quietly.
func (s *DataFilterServiceImpl) Save(ctx context.Context, filter *DataFilter) error {
	if !filter.Kind.Valid() {
		return fmt.Errorf("invalid filter kind %q", filter.Kind)
	}
	desc, ok := s.Registry.Lookup(filter.ModuleName, filter.ModelName)
	if !ok {
		return fmt.Errorf("unknown record type %s/%s", filter.ModuleName, filter.ModelName)
	}

	parsed, err := condition.ParseMap(filter.Conditions)
	if err != nil {
		return err
	}
	for _, cond := range parsed {
		if !desc.HasPath(cond.Path) {
			return fmt.Errorf("unknown attribute path %q on %s/%s", cond.Field(), filter.ModuleName, filter.ModelName)
		}
	}
	filter.Parsed = parsed

	now := time.Now()
	filter.UpdatedAt = now
	if filter.CreatedAt.IsZero() {
		filter.CreatedAt = now
	}
	return s.FilterRepo.Save(ctx, filter)
}

func (s *DataFilterServiceImpl) Delete(ctx context.Context, id string) error {
	return s.FilterRepo.Delete(ctx, id)
}

func (s *DataFilterServiceImpl) FiltersForProfile(ctx context.Context, profileID string) ([]DataFilter, error) {
	oid, err := primitive.ObjectIDFromHex(profileID)
	if err != nil {
		return nil, err
	}
	return s.FilterRepo.FindByProfileID(ctx, oid)
}

// ActiveFilterNames lists the names of the filters that would constrain the
// principal on a record type. Used by the policy context payload.
func (s *DataFilterServiceImpl) ActiveFilterNames(ctx context.Context, principal *common_models.Principal, moduleName, modelName string) ([]string, error) {
	filters, err := s.activeFilters(ctx, principal, moduleName, modelName)
	if err != nil || filters == nil {
		return nil, err
	}
	names := make([]string, 0, len(filters))
	for _, f := range filters {
		names = append(names, f.Name)
	}
	return names, nil
}

// Apply narrows base with the principal's active filters for the record
// type. Filters are OR-composed: each contributes one branch, a conjunction
// of its conditions; exclude filters contribute the negation of theirs. A
// filter that fails to parse or references an unknown attribute path is
// skipped with a diagnostic and never fails the request.
func (s *DataFilterServiceImpl) Apply(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error) {
	filters, err := s.activeFilters(ctx, principal, moduleName, modelName)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return base, nil
	}

	desc, ok := s.Registry.Lookup(moduleName, modelName)
	if !ok {
		return base, nil
	}

	var branches []bson.M
	for i := range filters {
		branch, ok := s.compileBranch(&filters[i], desc)
		if !ok {
			continue
		}
		branches = append(branches, branch)
	}
	if len(branches) == 0 {
		return base, nil
	}

	var combined bson.M
	if len(branches) == 1 {
		combined = branches[0]
	} else {
		ors := make([]bson.M, len(branches))
		copy(ors, branches)
		combined = bson.M{"$or": ors}
	}

	if len(base) == 0 {
		return combined, nil
	}
	return bson.M{"$and": []bson.M{base, combined}}, nil
}

func (s *DataFilterServiceImpl) activeFilters(ctx context.Context, principal *common_models.Principal, moduleName, modelName string) ([]DataFilter, error) {
	if principal == nil || principal.Superuser || principal.ProfileID == "" {
		return nil, nil
	}
	profileID, err := primitive.ObjectIDFromHex(principal.ProfileID)
	if err != nil {
		return nil, nil
	}
	return s.FilterRepo.FindActive(ctx, profileID, moduleName, modelName)
}

// compileBranch turns one filter into its query predicate. The parsed form
// persisted at write time is preferred; the raw map is a fallback for
// filters written before parsing was stored.
func (s *DataFilterServiceImpl) compileBranch(f *DataFilter, desc *registry.Descriptor) (bson.M, bool) {
	conditions := f.Parsed
	if len(conditions) == 0 {
		parsed, err := condition.ParseMap(f.Conditions)
		if err != nil {
			s.Log.Warn("skipping malformed data filter",
				zap.String("filter", f.Name),
				zap.String("module", f.ModuleName),
				zap.String("model", f.ModelName),
				zap.Error(err))
			return nil, false
		}
		conditions = parsed
	}
	if len(conditions) == 0 {
		return nil, false
	}

	for _, cond := range conditions {
		if !desc.HasPath(cond.Path) {
			s.Log.Warn("skipping data filter with unknown attribute path",
				zap.String("filter", f.Name),
				zap.String("path", cond.Field()),
				zap.String("module", f.ModuleName),
				zap.String("model", f.ModelName))
			return nil, false
		}
	}

	if f.Kind == KindExclude {
		return condition.Negate(conditions), true
	}
	return condition.CompileAll(conditions), true
}

func (s *DataFilterServiceImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return s.FilterRepo.DeleteByProfileID(ctx, profileID)
}
