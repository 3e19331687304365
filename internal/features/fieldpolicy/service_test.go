package fieldpolicy

import (
	"context"
	"testing"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakePolicyRepo struct {
	policies []FieldPolicy
	saved    []FieldPolicy
}

func (f *fakePolicyRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakePolicyRepo) Upsert(ctx context.Context, policy *FieldPolicy) error {
	f.saved = append(f.saved, *policy)
	return nil
}

func (f *fakePolicyRepo) FindForModel(ctx context.Context, profileID primitive.ObjectID, moduleName, modelName string) ([]FieldPolicy, error) {
	var out []FieldPolicy
	for _, p := range f.policies {
		if p.ProfileID == profileID && p.ModuleName == moduleName && p.ModelName == modelName {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePolicyRepo) FindForModule(ctx context.Context, profileID primitive.ObjectID, moduleName string) ([]FieldPolicy, error) {
	return f.policies, nil
}

func (f *fakePolicyRepo) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return nil
}

func newPolicyService(repo *fakePolicyRepo) *FieldPolicyServiceImpl {
	return &FieldPolicyServiceImpl{
		PolicyRepo: repo,
		Registry:   registry.Default(),
		Log:        zap.NewNop(),
	}
}

func restrictedPrincipal(profileID primitive.ObjectID) *common_models.Principal {
	return &common_models.Principal{
		UserID:    primitive.NewObjectID().Hex(),
		Active:    true,
		ProfileID: profileID.Hex(),
	}
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func TestUpsertNormalizes(t *testing.T) {
	repo := &fakePolicyRepo{}
	service := newPolicyService(repo)
	profileID := primitive.NewObjectID()

	t.Run("Edit implies view", func(t *testing.T) {
		policy := &FieldPolicy{
			ProfileID:  profileID,
			ModuleName: "property",
			ModelName:  "Property",
			FieldName:  "total_price",
			CanEdit:    true,
		}
		if err := service.Upsert(context.Background(), policy); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !policy.CanView {
			t.Error("can_edit should force can_view")
		}
	})

	t.Run("No view clears everything else", func(t *testing.T) {
		policy := &FieldPolicy{
			ProfileID:  profileID,
			ModuleName: "property",
			ModelName:  "Property",
			FieldName:  "owner_phone",
			CanView:    false,
			InList:     true,
			InDetail:   true,
			InForm:     true,
		}
		if err := service.Upsert(context.Background(), policy); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if policy.CanEdit || policy.InList || policy.InDetail || policy.InForm {
			t.Errorf("hidden field should not stay renderable: %+v", policy)
		}
	})

	t.Run("Unknown field rejected", func(t *testing.T) {
		policy := &FieldPolicy{
			ProfileID:  profileID,
			ModuleName: "property",
			ModelName:  "Property",
			FieldName:  "no_such_field",
			CanView:    true,
		}
		if err := service.Upsert(context.Background(), policy); err == nil {
			t.Error("expected error for unknown field")
		}
	})
}

func TestVisibleFieldsHidesRestricted(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakePolicyRepo{
		policies: []FieldPolicy{
			{
				ProfileID:  profileID,
				ModuleName: "property",
				ModelName:  "Property",
				FieldName:  "owner_phone",
				CanView:    false,
				Active:     true,
			},
		},
	}
	service := newPolicyService(repo)

	fields, err := service.VisibleFields(context.Background(), restrictedPrincipal(profileID), "property", "Property", ViewDetail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contains(fields, "owner_phone") {
		t.Error("owner_phone should be hidden from the restricted profile")
	}
	for _, name := range []string{"name", "total_price", "status", "property_type"} {
		if !contains(fields, name) {
			t.Errorf("field %q without a policy row should stay visible", name)
		}
	}
}

func TestVisibleFieldsDefaultsAndSuperuser(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakePolicyRepo{
		policies: []FieldPolicy{
			{
				ProfileID:  profileID,
				ModuleName: "property",
				ModelName:  "Property",
				FieldName:  "owner_phone",
				CanView:    false,
				Active:     true,
			},
		},
	}
	service := newPolicyService(repo)
	all := registry.Default()
	desc, _ := all.Lookup("property", "Property")

	t.Run("Superuser sees everything", func(t *testing.T) {
		super := &common_models.Principal{Active: true, Superuser: true, ProfileID: profileID.Hex()}
		fields, err := service.VisibleFields(context.Background(), super, "property", "Property", ViewDetail, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fields) != len(desc.FieldNames()) {
			t.Errorf("superuser should see all %d fields, got %d", len(desc.FieldNames()), len(fields))
		}
	})

	t.Run("Principal without a profile sees everything", func(t *testing.T) {
		unbound := &common_models.Principal{Active: true}
		fields, err := service.VisibleFields(context.Background(), unbound, "property", "Property", ViewDetail, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fields) != len(desc.FieldNames()) {
			t.Errorf("unbound principal should see all fields, got %v", fields)
		}
	})
}

func TestVisibleFieldsViewSpecific(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakePolicyRepo{
		policies: []FieldPolicy{
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				FieldName:  "notes",
				CanView:    true,
				InDetail:   true,
				// not in list
				Active: true,
			},
		},
	}
	service := newPolicyService(repo)
	principal := restrictedPrincipal(profileID)

	detail, err := service.VisibleFields(context.Background(), principal, "leads", "Lead", ViewDetail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !contains(detail, "notes") {
		t.Error("notes should be visible in the detail view")
	}

	list, err := service.VisibleFields(context.Background(), principal, "leads", "Lead", ViewList, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contains(list, "notes") {
		t.Error("notes should be hidden from the list view")
	}
}

func TestVisibleFieldsConditional(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakePolicyRepo{
		policies: []FieldPolicy{
			{
				ProfileID:  profileID,
				ModuleName: "property",
				ModelName:  "Property",
				FieldName:  "owner_phone",
				CanView:    true,
				InList:     true,
				InDetail:   true,
				InForm:     true,
				Condition:  map[string]interface{}{"status": "Available"},
				Active:     true,
			},
		},
	}
	service := newPolicyService(repo)
	principal := restrictedPrincipal(profileID)

	tests := []struct {
		name   string
		record map[string]interface{}
		want   bool
	}{
		{"Matching record shows the field", map[string]interface{}{"status": "Available"}, true},
		{"Non-matching record hides it", map[string]interface{}{"status": "Sold"}, false},
		{"No record counts as met", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := service.VisibleFields(context.Background(), principal, "property", "Property", ViewDetail, tt.record)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := contains(fields, "owner_phone"); got != tt.want {
				t.Errorf("owner_phone visible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanEdit(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakePolicyRepo{
		policies: []FieldPolicy{
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				FieldName:  "score",
				CanView:    true,
				CanEdit:    false,
				Active:     true,
			},
		},
	}
	service := newPolicyService(repo)
	principal := restrictedPrincipal(profileID)

	if ok, _ := service.CanEdit(context.Background(), principal, "leads", "Lead", "score"); ok {
		t.Error("read-only field should not be editable")
	}
	if ok, _ := service.CanEdit(context.Background(), principal, "leads", "Lead", "status"); !ok {
		t.Error("field without a policy row should default to editable")
	}
	if ok, _ := service.CanEdit(context.Background(), nil, "leads", "Lead", "status"); ok {
		t.Error("nil principal should never edit")
	}
}
