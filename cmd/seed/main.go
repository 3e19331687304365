package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/config"
	"estate-crm/internal/database"
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/datafilter"
	"estate-crm/internal/features/datascope"
	"estate-crm/internal/features/dropdown"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/features/profile"
	"estate-crm/internal/features/record"
	"estate-crm/internal/features/user"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			database.NewDatabase,
			registry.Default,
			func() *zap.Logger { return zap.NewNop() },
			catalog.NewCatalogRepository,
			profile.NewProfileRepository,
			profile.NewBindingRepository,
			user.NewUserRepository,
			fieldpolicy.NewFieldPolicyRepository,
			datafilter.NewDataFilterRepository,
			datafilter.NewDataFilterService,
			datascope.NewDataScopeRepository,
			dropdown.NewDropdownRepository,
			record.NewRecordRepository,
		),
		fx.Invoke(seed),
	)

	app.Run()
}

type seeder struct {
	Catalog     catalog.CatalogRepository
	Profiles    profile.ProfileRepository
	Bindings    profile.BindingRepository
	Users       user.UserRepository
	Policies    fieldpolicy.FieldPolicyRepository
	Filters     datafilter.DataFilterService
	Scopes      datascope.DataScopeRepository
	Dropdowns   dropdown.DropdownRepository
	Records     record.RecordRepository
	permissions map[string][]catalog.Permission
}

func seed(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	catalogRepo catalog.CatalogRepository,
	profileRepo profile.ProfileRepository,
	bindingRepo profile.BindingRepository,
	userRepo user.UserRepository,
	policyRepo fieldpolicy.FieldPolicyRepository,
	filterService datafilter.DataFilterService,
	scopeRepo datascope.DataScopeRepository,
	dropdownRepo dropdown.DropdownRepository,
	recordRepo record.RecordRepository,
) {
	s := &seeder{
		Catalog:     catalogRepo,
		Profiles:    profileRepo,
		Bindings:    bindingRepo,
		Users:       userRepo,
		Policies:    policyRepo,
		Filters:     filterService,
		Scopes:      scopeRepo,
		Dropdowns:   dropdownRepo,
		Records:     recordRepo,
		permissions: map[string][]catalog.Permission{},
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := s.run(context.Background()); err != nil {
					log.Fatalf("Seeding failed: %v", err)
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

func (s *seeder) run(ctx context.Context) error {
	log.Println("Starting Database Seeding...")

	if err := s.seedCatalog(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	commercial, err := s.seedCommercialProfile(ctx)
	if err != nil {
		return fmt.Errorf("commercial profile: %w", err)
	}

	residential, err := s.seedResidentialProfile(ctx)
	if err != nil {
		return fmt.Errorf("residential profile: %w", err)
	}

	if err := s.seedUsers(ctx, commercial, residential); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	if err := s.seedRecords(ctx); err != nil {
		return fmt.Errorf("records: %w", err)
	}

	log.Println("Seeding Completed Successfully!")
	return nil
}

func (s *seeder) seedCatalog(ctx context.Context) error {
	now := time.Now()

	modules := []catalog.Module{
		{Name: "leads", Label: "Leads", Order: 1, Active: true},
		{Name: "property", Label: "Property", Order: 2, Active: true},
		{Name: "projects", Label: "Projects", Order: 3, Active: true},
		{Name: "audit", Label: "Audit Trail", Order: 4, Active: true},
	}

	for i := range modules {
		modules[i].CreatedAt = now
		modules[i].UpdatedAt = now
		if err := s.Catalog.UpsertModule(ctx, &modules[i]); err != nil {
			return err
		}

		for _, level := range common_models.Levels() {
			perm := catalog.Permission{
				ModuleName: modules[i].Name,
				Code:       fmt.Sprintf("%s %s", level.String(), modules[i].Label),
				Level:      level,
				Active:     true,
				CreatedAt:  now,
			}
			if err := s.Catalog.UpsertPermission(ctx, &perm); err != nil {
				return err
			}
		}

		perms, err := s.Catalog.ListPermissions(ctx, modules[i].Name)
		if err != nil {
			return err
		}
		s.permissions[modules[i].Name] = perms
		log.Printf("Seeded module %q with %d permissions", modules[i].Name, len(perms))
	}
	return nil
}

// refsUpTo mirrors the cumulative grant convention: granting a level grants
// every permission at or below it.
func (s *seeder) refsUpTo(moduleName string, level common_models.PermissionLevel) []profile.PermissionRef {
	var refs []profile.PermissionRef
	for _, p := range s.permissions[moduleName] {
		if p.Level <= level {
			refs = append(refs, profile.PermissionRef{
				PermissionID: p.ID,
				ModuleName:   p.ModuleName,
				Code:         p.Code,
				Level:        p.Level,
			})
		}
	}
	return refs
}

func (s *seeder) ensureProfile(ctx context.Context, name, description string, levels map[string]common_models.PermissionLevel) (*profile.Profile, error) {
	existing, err := s.Profiles.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		now := time.Now()
		existing = &profile.Profile{
			ID:          primitive.NewObjectID(),
			Name:        name,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Profiles.Create(ctx, existing); err != nil {
			return nil, err
		}
	}

	for moduleName, level := range levels {
		if err := s.Profiles.SetPermissionsForModule(ctx, existing.ID, moduleName, s.refsUpTo(moduleName, level)); err != nil {
			return nil, err
		}
	}
	log.Printf("Seeded profile %q", name)
	return existing, nil
}

func (s *seeder) seedCommercialProfile(ctx context.Context) (*profile.Profile, error) {
	p, err := s.ensureProfile(ctx, "Commercial Property Specialist",
		"Works commercial inventory only.",
		map[string]common_models.PermissionLevel{
			"leads":    common_models.LevelEdit,
			"property": common_models.LevelEdit,
			"audit":    common_models.LevelView,
		})
	if err != nil {
		return nil, err
	}

	filter := &datafilter.DataFilter{
		ProfileID:  p.ID,
		ModuleName: "property",
		ModelName:  "Property",
		Name:       "Commercial inventory only",
		Kind:       datafilter.KindInclude,
		Order:      1,
		Conditions: map[string]interface{}{
			"property_type__name__in": []interface{}{"Commercial", "Office", "Retail", "Warehouse"},
		},
		Active: true,
	}
	if err := s.Filters.Save(ctx, filter); err != nil {
		return nil, err
	}

	scope := &datascope.DataScope{
		ProfileID:  p.ID,
		ModuleName: "property",
		Kind:       datascope.KindAll,
		Active:     true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.Scopes.Upsert(ctx, scope); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *seeder) seedResidentialProfile(ctx context.Context) (*profile.Profile, error) {
	p, err := s.ensureProfile(ctx, "Residential Agent",
		"Handles villa and apartment listings; sees only assigned leads.",
		map[string]common_models.PermissionLevel{
			"leads":    common_models.LevelEdit,
			"property": common_models.LevelView,
		})
	if err != nil {
		return nil, err
	}
	now := time.Now()

	// Hide the owner's phone number from this profile everywhere.
	policy := &fieldpolicy.FieldPolicy{
		ProfileID:  p.ID,
		ModuleName: "property",
		ModelName:  "Property",
		FieldName:  "owner_phone",
		CanView:    false,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Policies.Upsert(ctx, policy); err != nil {
		return nil, err
	}

	restriction := &dropdown.DropdownRestriction{
		ProfileID:     p.ID,
		ModuleName:    "property",
		FieldName:     "property_type",
		SourceModel:   "PropertyType",
		SourceField:   "name",
		DisplayField:  "name",
		AllowedValues: []string{"Villa", "Apartment"},
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Dropdowns.Upsert(ctx, restriction); err != nil {
		return nil, err
	}

	scope := &datascope.DataScope{
		ProfileID:  p.ID,
		ModuleName: "leads",
		Kind:       datascope.KindAssigned,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Scopes.Upsert(ctx, scope); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *seeder) seedUsers(ctx context.Context, commercial, residential *profile.Profile) error {
	now := time.Now()

	type demoUser struct {
		username  string
		password  string
		first     string
		last      string
		profile   *profile.Profile
		superuser bool
		team      string
	}

	demo := []demoUser{
		{username: "admin", password: "admin123", first: "System", last: "Admin", superuser: true},
		{username: "carla", password: "carla123", first: "Carla", last: "Mendes", profile: commercial, team: "commercial"},
		{username: "ravi", password: "ravi123", first: "Ravi", last: "Sharma", profile: residential, team: "residential"},
	}

	for _, d := range demo {
		existing, err := s.Users.FindByUsername(ctx, d.username)
		if err != nil {
			return err
		}
		if existing == nil {
			existing = &user.User{
				Username:  d.username,
				Password:  d.password,
				Email:     d.username + "@estate-crm.local",
				FirstName: d.first,
				LastName:  d.last,
				Status:    user.StatusActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.Users.Create(ctx, existing); err != nil {
				return err
			}
		}

		binding := &profile.Binding{
			UserID:       existing.ID,
			Active:       true,
			Superuser:    d.superuser,
			EmployeeName: existing.DisplayName(),
			Team:         d.team,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if d.profile != nil {
			binding.ProfileID = &d.profile.ID
		}
		if err := s.Bindings.Upsert(ctx, binding); err != nil {
			return err
		}
		log.Printf("Seeded user %q", d.username)
	}
	return nil
}

func (s *seeder) seedRecords(ctx context.Context) error {
	propertyTypes := []string{"Villa", "Apartment", "Commercial", "Office", "Retail", "Warehouse"}
	for _, name := range propertyTypes {
		if _, err := s.Records.Insert(ctx, "property", "PropertyType", map[string]interface{}{
			"name": name,
		}); err != nil {
			return err
		}
	}

	users, err := s.collectUserIDs(ctx, "carla", "ravi")
	if err != nil {
		return err
	}

	properties := []map[string]interface{}{
		{
			"name":          "Marina Tower Office 12A",
			"property_type": map[string]interface{}{"name": "Office"},
			"status":        "Available",
			"owner_phone":   "+971-50-111-2233",
			"total_price":   1850000,
			"assigned_to":   users["carla"],
			"created_by":    users["carla"],
		},
		{
			"name":          "Palm Grove Villa 7",
			"property_type": map[string]interface{}{"name": "Villa"},
			"status":        "Available",
			"owner_phone":   "+971-50-444-5566",
			"total_price":   4200000,
			"assigned_to":   users["ravi"],
			"created_by":    users["ravi"],
		},
	}
	for _, doc := range properties {
		if _, err := s.Records.Insert(ctx, "property", "Property", doc); err != nil {
			return err
		}
	}

	leads := []map[string]interface{}{
		{
			"full_name":   "Omar Haddad",
			"status":      "New",
			"priority":    "High",
			"temperature": "Hot",
			"score":       82,
			"budget_min":  1500000,
			"budget_max":  2500000,
			"region":      "Downtown",
			"assigned_to": users["carla"],
			"created_by":  users["carla"],
		},
		{
			"full_name":   "Lena Petrova",
			"status":      "Contacted",
			"priority":    "Medium",
			"temperature": "Warm",
			"score":       55,
			"budget_min":  800000,
			"budget_max":  1200000,
			"region":      "Palm Grove",
			"assigned_to": users["ravi"],
			"created_by":  users["ravi"],
		},
	}
	for _, doc := range leads {
		if _, err := s.Records.Insert(ctx, "leads", "Lead", doc); err != nil {
			return err
		}
	}

	log.Printf("Seeded %d property types, %d properties, %d leads",
		len(propertyTypes), len(properties), len(leads))
	return nil
}

func (s *seeder) collectUserIDs(ctx context.Context, usernames ...string) (map[string]string, error) {
	ids := make(map[string]string, len(usernames))
	for _, name := range usernames {
		u, err := s.Users.FindByUsername(ctx, name)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("user %q not seeded", name)
		}
		ids[name] = u.ID.Hex()
	}
	return ids, nil
}
