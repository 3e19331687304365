package profile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/features/audit"
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/user"
	"estate-crm/internal/registry"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeProfileRepo struct {
	profiles map[string]*Profile
	byModule map[string][]PermissionRef
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{
		profiles: map[string]*Profile{},
		byModule: map[string][]PermissionRef{},
	}
}

func (f *fakeProfileRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeProfileRepo) Create(ctx context.Context, profile *Profile) error {
	f.profiles[profile.ID.Hex()] = profile
	return nil
}

func (f *fakeProfileRepo) FindByID(ctx context.Context, id string) (*Profile, error) {
	return f.profiles[id], nil
}

func (f *fakeProfileRepo) FindByName(ctx context.Context, name string) (*Profile, error) {
	for _, p := range f.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfileRepo) List(ctx context.Context) ([]Profile, error) { return nil, nil }

func (f *fakeProfileRepo) Update(ctx context.Context, id string, profile *Profile) error {
	return nil
}

func (f *fakeProfileRepo) Delete(ctx context.Context, id string) error {
	delete(f.profiles, id)
	return nil
}

func (f *fakeProfileRepo) SetPermissionsForModule(ctx context.Context, profileID primitive.ObjectID, moduleName string, refs []PermissionRef) error {
	f.byModule[moduleName] = refs
	if p, ok := f.profiles[profileID.Hex()]; ok {
		kept := p.Permissions[:0]
		for _, ref := range p.Permissions {
			if ref.ModuleName != moduleName {
				kept = append(kept, ref)
			}
		}
		p.Permissions = append(kept, refs...)
	}
	return nil
}

type fakeBindingRepo struct {
	bindings map[string]*Binding
}

func (f *fakeBindingRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeBindingRepo) FindByUserID(ctx context.Context, userID primitive.ObjectID) (*Binding, error) {
	return f.bindings[userID.Hex()], nil
}

func (f *fakeBindingRepo) Upsert(ctx context.Context, binding *Binding) error {
	if f.bindings == nil {
		f.bindings = map[string]*Binding{}
	}
	f.bindings[binding.UserID.Hex()] = binding
	return nil
}

func (f *fakeBindingRepo) UnbindProfile(ctx context.Context, profileID primitive.ObjectID) error {
	for _, b := range f.bindings {
		if b.ProfileID != nil && *b.ProfileID == profileID {
			b.ProfileID = nil
		}
	}
	return nil
}

type fakeUserRepo struct {
	users map[string]*user.User
}

func (f *fakeUserRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeUserRepo) Create(ctx context.Context, u *user.User) error { return nil }

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*user.User, error) {
	return f.users[id], nil
}

func (f *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]user.User, error) {
	return nil, nil
}

// fakeCatalog serves a fixed permission ladder for the "leads" module.
type fakeCatalog struct {
	permissions []catalog.Permission
}

func newFakeCatalog() *fakeCatalog {
	f := &fakeCatalog{}
	for _, level := range common_models.Levels() {
		f.permissions = append(f.permissions, catalog.Permission{
			ID:         primitive.NewObjectID(),
			ModuleName: "leads",
			Code:       fmt.Sprintf("%s Leads", level.String()),
			Level:      level,
			Active:     true,
		})
	}
	return f
}

func (f *fakeCatalog) ListModules(ctx context.Context) ([]catalog.Module, error) {
	return []catalog.Module{{Name: "leads", Label: "Leads", Active: true}}, nil
}

func (f *fakeCatalog) GetModule(ctx context.Context, name string) (*catalog.Module, error) {
	if name != "leads" {
		return nil, catalog.ErrModuleNotFound
	}
	return &catalog.Module{Name: "leads", Label: "Leads", Active: true}, nil
}

func (f *fakeCatalog) ModuleFields(ctx context.Context, moduleName, modelName string) ([]catalog.ModuleField, error) {
	return nil, nil
}

func (f *fakeCatalog) Levels() []catalog.LevelInfo { return nil }

func (f *fakeCatalog) PermissionsForModule(ctx context.Context, moduleName string) ([]catalog.Permission, error) {
	return f.permissions, nil
}

func (f *fakeCatalog) PermissionsUpTo(ctx context.Context, moduleName string, level common_models.PermissionLevel) ([]catalog.Permission, error) {
	var out []catalog.Permission
	for _, p := range f.permissions {
		if p.ModuleName == moduleName && p.Level <= level {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) PermissionsByIDs(ctx context.Context, ids []string) ([]catalog.Permission, error) {
	return nil, nil
}

// noopAudit satisfies the audit interface without persisting anything.
type noopAudit struct{}

func (noopAudit) RecordCreate(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, record map[string]interface{}) {
}

func (noopAudit) RecordUpdate(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, before, after map[string]interface{}) {
}

func (noopAudit) RecordDelete(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, record map[string]interface{}) {
}

func (noopAudit) Event(ctx context.Context, moduleName string, action common_models.AuditAction, description string, severity common_models.Severity) {
}

func (noopAudit) List(ctx context.Context, principal *common_models.Principal, q audit.Query) ([]audit.AuditEntry, int64, error) {
	return nil, 0, nil
}

func (noopAudit) Get(ctx context.Context, principal *common_models.Principal, id string) (*audit.AuditEntry, []audit.AuditEntry, error) {
	return nil, nil, nil
}

func (noopAudit) ExportCSV(ctx context.Context, principal *common_models.Principal, q audit.Query, w io.Writer) error {
	return nil
}

func (noopAudit) ExportXLSX(ctx context.Context, principal *common_models.Principal, q audit.Query) (*excelize.File, error) {
	return nil, nil
}

func (noopAudit) Purge(ctx context.Context, olderThanDays int) (int64, error) { return 0, nil }

func newProfileService(profiles *fakeProfileRepo, bindings *fakeBindingRepo, users *fakeUserRepo) *ProfileServiceImpl {
	return &ProfileServiceImpl{
		ProfileRepo:    profiles,
		BindingRepo:    bindings,
		UserRepo:       users,
		CatalogService: newFakeCatalog(),
		AuditService:   noopAudit{},
		Log:            zap.NewNop(),
	}
}

func seedProfile(repo *fakeProfileRepo, name string) *Profile {
	p := &Profile{ID: primitive.NewObjectID(), Name: name}
	repo.profiles[p.ID.Hex()] = p
	return p
}

func TestSetModuleLevelCumulative(t *testing.T) {
	repo := newFakeProfileRepo()
	p := seedProfile(repo, "Residential Agent")
	service := newProfileService(repo, &fakeBindingRepo{}, &fakeUserRepo{})

	msg, err := service.SetModuleLevel(context.Background(), p.ID.Hex(), "leads", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refs := repo.byModule["leads"]
	if len(refs) != 3 {
		t.Fatalf("level 3 should grant the 3 cumulative permissions, got %d", len(refs))
	}
	levels := map[common_models.PermissionLevel]bool{}
	for _, ref := range refs {
		levels[ref.Level] = true
	}
	for _, want := range []common_models.PermissionLevel{common_models.LevelView, common_models.LevelEdit, common_models.LevelCreate} {
		if !levels[want] {
			t.Errorf("missing cumulative level %v", want)
		}
	}
	if levels[common_models.LevelDelete] {
		t.Error("level 3 must not grant delete")
	}
	if !strings.Contains(msg, "create") || !strings.Contains(msg, "Residential Agent") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestSetModuleLevelClearsAtZero(t *testing.T) {
	repo := newFakeProfileRepo()
	p := seedProfile(repo, "Residential Agent")
	service := newProfileService(repo, &fakeBindingRepo{}, &fakeUserRepo{})

	if _, err := service.SetModuleLevel(context.Background(), p.ID.Hex(), "leads", 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, err := service.SetModuleLevel(context.Background(), p.ID.Hex(), "leads", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.byModule["leads"]) != 0 {
		t.Errorf("level 0 should clear the module, got %v", repo.byModule["leads"])
	}
	if !strings.Contains(msg, "Cleared") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestSetModuleLevelValidation(t *testing.T) {
	repo := newFakeProfileRepo()
	p := seedProfile(repo, "Residential Agent")
	service := newProfileService(repo, &fakeBindingRepo{}, &fakeUserRepo{})

	if _, err := service.SetModuleLevel(context.Background(), p.ID.Hex(), "leads", 5); err != ErrInvalidLevel {
		t.Errorf("level 5 should be rejected, got %v", err)
	}
	if _, err := service.SetModuleLevel(context.Background(), p.ID.Hex(), "leads", -1); err != ErrInvalidLevel {
		t.Errorf("level -1 should be rejected, got %v", err)
	}
	if _, err := service.SetModuleLevel(context.Background(), p.ID.Hex(), "tickets", 2); err == nil {
		t.Error("unknown module should be rejected")
	}
	if _, err := service.SetModuleLevel(context.Background(), primitive.NewObjectID().Hex(), "leads", 2); err != ErrProfileNotFound {
		t.Errorf("missing profile should be rejected, got %v", err)
	}
}

func TestResolvePrincipal(t *testing.T) {
	repo := newFakeProfileRepo()
	profileID := primitive.NewObjectID()
	repo.profiles[profileID.Hex()] = &Profile{
		ID:   profileID,
		Name: "Commercial Property Specialist",
		Permissions: []PermissionRef{
			{PermissionID: primitive.NewObjectID(), ModuleName: "leads", Code: "view Leads", Level: common_models.LevelView},
			{PermissionID: primitive.NewObjectID(), ModuleName: "leads", Code: "edit Leads", Level: common_models.LevelEdit},
		},
	}

	boundID := primitive.NewObjectID()
	unboundID := primitive.NewObjectID()
	disabledID := primitive.NewObjectID()

	users := &fakeUserRepo{users: map[string]*user.User{
		boundID.Hex():    {ID: boundID, Username: "carla", FirstName: "Carla", Status: user.StatusActive},
		unboundID.Hex():  {ID: unboundID, Username: "guest", Status: user.StatusActive},
		disabledID.Hex(): {ID: disabledID, Username: "gone", Status: user.StatusDisabled},
	}}
	bindings := &fakeBindingRepo{bindings: map[string]*Binding{
		boundID.Hex(): {
			UserID:       boundID,
			ProfileID:    &profileID,
			Active:       true,
			EmployeeName: "Carla Mendes",
			Team:         "commercial",
		},
		disabledID.Hex(): {UserID: disabledID, Active: true},
	}}
	service := newProfileService(repo, bindings, users)

	t.Run("Bound user carries profile grants", func(t *testing.T) {
		principal, err := service.ResolvePrincipal(context.Background(), boundID.Hex())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !principal.Active || principal.Superuser {
			t.Errorf("unexpected flags: %+v", principal)
		}
		if principal.Name != "Carla Mendes" {
			t.Errorf("employee name should override, got %q", principal.Name)
		}
		if principal.Team != "commercial" || principal.ProfileName != "Commercial Property Specialist" {
			t.Errorf("binding attributes not carried: %+v", principal)
		}
		if !principal.HasLevel("leads", common_models.LevelEdit) {
			t.Error("edit grant should satisfy edit")
		}
		if !principal.HasLevel("leads", common_models.LevelView) {
			t.Error("edit grant should subsume view")
		}
		if principal.HasLevel("leads", common_models.LevelDelete) {
			t.Error("edit grant must not satisfy delete")
		}
		if principal.HasLevel("property", common_models.LevelView) {
			t.Error("no grant on property")
		}
	})

	t.Run("User without a binding has no grants", func(t *testing.T) {
		principal, err := service.ResolvePrincipal(context.Background(), unboundID.Hex())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !principal.Active {
			t.Error("active user without a binding stays active")
		}
		if len(principal.Grants) != 0 || principal.ProfileID != "" {
			t.Errorf("unbound principal should hold nothing: %+v", principal)
		}
		if principal.HasLevel("leads", common_models.LevelView) {
			t.Error("no binding means no access")
		}
	})

	t.Run("Disabled user resolves inactive", func(t *testing.T) {
		principal, err := service.ResolvePrincipal(context.Background(), disabledID.Hex())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if principal.Active {
			t.Error("disabled user must resolve inactive")
		}
		if principal.HasLevel("leads", common_models.LevelView) {
			t.Error("inactive principal passes no checks")
		}
	})

	t.Run("Unknown user errors", func(t *testing.T) {
		if _, err := service.ResolvePrincipal(context.Background(), primitive.NewObjectID().Hex()); err == nil {
			t.Error("expected error for unknown user")
		}
	})
}
