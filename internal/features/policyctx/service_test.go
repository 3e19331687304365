package policyctx

import (
	"context"
	"errors"
	"reflect"
	"testing"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/datafilter"
	"estate-crm/internal/features/datascope"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type stubCatalog struct {
	modules []catalog.Module
	err     error
}

func (s *stubCatalog) ListModules(ctx context.Context) ([]catalog.Module, error) {
	return s.modules, s.err
}

func (s *stubCatalog) GetModule(ctx context.Context, name string) (*catalog.Module, error) {
	return nil, catalog.ErrModuleNotFound
}

func (s *stubCatalog) ModuleFields(ctx context.Context, moduleName, modelName string) ([]catalog.ModuleField, error) {
	return nil, nil
}

func (s *stubCatalog) Levels() []catalog.LevelInfo { return nil }

func (s *stubCatalog) PermissionsForModule(ctx context.Context, moduleName string) ([]catalog.Permission, error) {
	return nil, nil
}

func (s *stubCatalog) PermissionsUpTo(ctx context.Context, moduleName string, level common_models.PermissionLevel) ([]catalog.Permission, error) {
	return nil, nil
}

func (s *stubCatalog) PermissionsByIDs(ctx context.Context, ids []string) ([]catalog.Permission, error) {
	return nil, nil
}

type stubFilters struct {
	applied bson.M
	names   []string
	err     error
}

func (s *stubFilters) Save(ctx context.Context, filter *datafilter.DataFilter) error { return nil }

func (s *stubFilters) Delete(ctx context.Context, id string) error { return nil }

func (s *stubFilters) FiltersForProfile(ctx context.Context, profileID string) ([]datafilter.DataFilter, error) {
	return nil, nil
}

func (s *stubFilters) ActiveFilterNames(ctx context.Context, principal *common_models.Principal, moduleName, modelName string) ([]string, error) {
	return s.names, s.err
}

func (s *stubFilters) Apply(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.applied != nil {
		return s.applied, nil
	}
	return base, nil
}

func (s *stubFilters) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return nil
}

type stubScopes struct {
	narrowed bson.M
}

func (s *stubScopes) Upsert(ctx context.Context, scope *datascope.DataScope) error { return nil }

func (s *stubScopes) ScopesForProfile(ctx context.Context, profileID string, moduleName string) ([]datascope.DataScope, error) {
	return nil, nil
}

func (s *stubScopes) Narrow(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error) {
	if s.narrowed != nil {
		return s.narrowed, nil
	}
	return base, nil
}

func (s *stubScopes) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return nil
}

type stubFieldPolicies struct {
	visible map[string][]string
	err     error
}

func (s *stubFieldPolicies) Upsert(ctx context.Context, policy *fieldpolicy.FieldPolicy) error {
	return nil
}

func (s *stubFieldPolicies) PoliciesForModel(ctx context.Context, profileID, moduleName, modelName string) ([]fieldpolicy.FieldPolicy, error) {
	return nil, nil
}

func (s *stubFieldPolicies) VisibleFields(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, view fieldpolicy.ViewType, record map[string]interface{}) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.visible[moduleName+"/"+modelName], nil
}

func (s *stubFieldPolicies) CanEdit(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string) (bool, error) {
	return true, nil
}

func (s *stubFieldPolicies) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return nil
}

func newContextService(cat *stubCatalog, filters *stubFilters, scopes *stubScopes, policies *stubFieldPolicies) *PolicyContextServiceImpl {
	return &PolicyContextServiceImpl{
		CatalogService: cat,
		DataFilters:    filters,
		DataScopes:     scopes,
		FieldPolicies:  policies,
		Registry:       registry.Default(),
		Log:            zap.NewNop(),
	}
}

func leadModules() []catalog.Module {
	return []catalog.Module{
		{Name: "leads", Label: "Leads", Active: true},
		{Name: "projects", Label: "Projects", Active: true},
	}
}

func TestBuildFlattensPermissions(t *testing.T) {
	service := newContextService(
		&stubCatalog{modules: leadModules()},
		&stubFilters{names: []string{"Hot leads"}},
		&stubScopes{},
		&stubFieldPolicies{visible: map[string][]string{"leads/Lead": {"full_name", "status"}}},
	)
	principal := &common_models.Principal{
		UserID: primitive.NewObjectID().Hex(),
		Active: true,
		Grants: []common_models.PermissionGrant{
			{Module: "leads", Level: common_models.LevelEdit},
		},
	}

	got := service.Build(context.Background(), principal)

	checks := map[string]bool{
		"can_view_leads":      true,
		"can_edit_leads":      true,
		"can_create_leads":    false,
		"can_delete_leads":    false,
		"can_view_projects":   false,
		"can_edit_projects":   false,
		"can_create_projects": false,
		"can_delete_projects": false,
	}
	for key, want := range checks {
		if got[key] != want {
			t.Errorf("%s = %v, want %v", key, got[key], want)
		}
	}

	if fields, ok := got["visible_fields_leads_Lead"].([]string); !ok || !reflect.DeepEqual(fields, []string{"full_name", "status"}) {
		t.Errorf("visible_fields_leads_Lead = %v", got["visible_fields_leads_Lead"])
	}
	if names, ok := got["active_filters_leads_Lead"].([]string); !ok || !reflect.DeepEqual(names, []string{"Hot leads"}) {
		t.Errorf("active_filters_leads_Lead = %v", got["active_filters_leads_Lead"])
	}

	// No view access on projects means no field or filter lists for it.
	if _, ok := got["visible_fields_projects_Project"]; ok {
		t.Error("projects without view access should carry no field list")
	}
}

func TestBuildDegradesToDenied(t *testing.T) {
	modules := leadModules()
	principal := &common_models.Principal{
		UserID: primitive.NewObjectID().Hex(),
		Active: true,
		Grants: []common_models.PermissionGrant{
			{Module: "leads", Level: common_models.LevelDelete},
		},
	}

	t.Run("Field policy failure", func(t *testing.T) {
		service := newContextService(
			&stubCatalog{modules: modules},
			&stubFilters{},
			&stubScopes{},
			&stubFieldPolicies{err: errors.New("storage down")},
		)
		got := service.Build(context.Background(), principal)
		for _, m := range modules {
			for _, action := range []string{"view", "edit", "create", "delete"} {
				key := "can_" + action + "_" + m.Name
				if got[key] != false {
					t.Errorf("%s = %v, want false", key, got[key])
				}
			}
		}
		for _, key := range []string{"visible_fields_leads_Lead", "active_filters_leads_Lead", "visible_fields_projects_Project", "active_filters_projects_Project"} {
			list, ok := got[key].([]string)
			if !ok {
				t.Errorf("denied context should carry %s as an empty list, got %v", key, got[key])
				continue
			}
			if len(list) != 0 {
				t.Errorf("%s = %v, want empty", key, list)
			}
		}
	})

	t.Run("Catalog failure", func(t *testing.T) {
		service := newContextService(
			&stubCatalog{err: errors.New("catalog down")},
			&stubFilters{},
			&stubScopes{},
			&stubFieldPolicies{},
		)
		got := service.Build(context.Background(), principal)
		if len(got) != 0 {
			t.Errorf("denied context without a module list should be empty, got %v", got)
		}
	})
}

func TestGuardQueryComposesFiltersThenScopes(t *testing.T) {
	filtered := bson.M{"property_type.name": bson.M{"$in": []interface{}{"Commercial"}}}
	narrowed := bson.M{"$and": []bson.M{filtered, {"assigned_to": "u1"}}}
	service := newContextService(
		&stubCatalog{modules: leadModules()},
		&stubFilters{applied: filtered},
		&stubScopes{narrowed: narrowed},
		&stubFieldPolicies{},
	)

	got, err := service.GuardQuery(context.Background(), &common_models.Principal{Active: true}, "property", "Property", bson.M{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, narrowed) {
		t.Errorf("GuardQuery() = %v, want %v", got, narrowed)
	}
}
