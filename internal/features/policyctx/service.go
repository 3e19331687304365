// Package policyctx is the façade the transport and rendering layers talk
// to: it composes the data filter engine and the scope resolver around base
// queries, and flattens the caller's whole permission surface into one map.
package policyctx

import (
	"context"
	"fmt"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/datafilter"
	"estate-crm/internal/features/datascope"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type PolicyContextService interface {
	GuardQuery(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error)
	Build(ctx context.Context, principal *common_models.Principal) map[string]interface{}
}

type PolicyContextServiceImpl struct {
	CatalogService catalog.CatalogService
	DataFilters    datafilter.DataFilterService
	DataScopes     datascope.DataScopeService
	FieldPolicies  fieldpolicy.FieldPolicyService
	Registry       *registry.Registry
	Log            *zap.Logger
}

func NewPolicyContextService(
	catalogService catalog.CatalogService,
	dataFilters datafilter.DataFilterService,
	dataScopes datascope.DataScopeService,
	fieldPolicies fieldpolicy.FieldPolicyService,
	reg *registry.Registry,
	log *zap.Logger,
) PolicyContextService {
	return &PolicyContextServiceImpl{
		CatalogService: catalogService,
		DataFilters:    dataFilters,
		DataScopes:     dataScopes,
		FieldPolicies:  fieldPolicies,
		Registry:       reg,
		Log:            log,
	}
}

// GuardQuery narrows base by the principal's data filters, then bounds the
// result by their data scopes. Callers must have checked module-level
// permission already; the guard only shapes what a permitted query returns.
func (s *PolicyContextServiceImpl) GuardQuery(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error) {
	filtered, err := s.DataFilters.Apply(ctx, principal, moduleName, modelName, base)
	if err != nil {
		return nil, err
	}
	return s.DataScopes.Narrow(ctx, principal, moduleName, modelName, filtered)
}

// Build computes the flat permission map consumed by the rendering layer:
// per-module action booleans, per-model visible field lists and active
// filter names. Any failure degrades to a uniformly denied context rather
// than a partial one.
func (s *PolicyContextServiceImpl) Build(ctx context.Context, principal *common_models.Principal) (result map[string]interface{}) {
	modules, err := s.CatalogService.ListModules(ctx)
	if err != nil {
		s.Log.Error("policy context degraded to denied", zap.Error(err))
		return s.deniedContext(nil)
	}

	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("policy context computation panicked, degraded to denied",
				zap.Any("panic", r))
			result = s.deniedContext(modules)
		}
	}()

	result = make(map[string]interface{})
	for _, m := range modules {
		result[fmt.Sprintf("can_view_%s", m.Name)] = principal.HasLevel(m.Name, common_models.LevelView)
		result[fmt.Sprintf("can_edit_%s", m.Name)] = principal.HasLevel(m.Name, common_models.LevelEdit)
		result[fmt.Sprintf("can_create_%s", m.Name)] = principal.HasLevel(m.Name, common_models.LevelCreate)
		result[fmt.Sprintf("can_delete_%s", m.Name)] = principal.HasLevel(m.Name, common_models.LevelDelete)

		if !principal.HasLevel(m.Name, common_models.LevelView) {
			continue
		}
		for _, desc := range s.Registry.Models(m.Name) {
			visible, err := s.FieldPolicies.VisibleFields(ctx, principal, m.Name, desc.Model, fieldpolicy.ViewList, nil)
			if err != nil {
				s.Log.Error("policy context degraded to denied",
					zap.String("module", m.Name), zap.Error(err))
				return s.deniedContext(modules)
			}
			result[fmt.Sprintf("visible_fields_%s_%s", m.Name, desc.Model)] = visible

			names, err := s.DataFilters.ActiveFilterNames(ctx, principal, m.Name, desc.Model)
			if err != nil {
				s.Log.Error("policy context degraded to denied",
					zap.String("module", m.Name), zap.Error(err))
				return s.deniedContext(modules)
			}
			if names == nil {
				names = []string{}
			}
			result[fmt.Sprintf("active_filters_%s_%s", m.Name, desc.Model)] = names
		}
	}
	return result
}

// deniedContext is the uniform all-false shape returned when computation
// fails part way: every boolean false, every list empty.
func (s *PolicyContextServiceImpl) deniedContext(modules []catalog.Module) map[string]interface{} {
	denied := make(map[string]interface{})
	for _, m := range modules {
		denied[fmt.Sprintf("can_view_%s", m.Name)] = false
		denied[fmt.Sprintf("can_edit_%s", m.Name)] = false
		denied[fmt.Sprintf("can_create_%s", m.Name)] = false
		denied[fmt.Sprintf("can_delete_%s", m.Name)] = false
		for _, desc := range s.Registry.Models(m.Name) {
			denied[fmt.Sprintf("visible_fields_%s_%s", m.Name, desc.Model)] = []string{}
			denied[fmt.Sprintf("active_filters_%s_%s", m.Name, desc.Model)] = []string{}
		}
	}
	return denied
}
