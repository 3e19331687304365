package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/features/audit"
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/datafilter"
	"estate-crm/internal/features/datascope"
	"estate-crm/internal/features/dropdown"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/features/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrSystemProfile   = errors.New("system profiles cannot be deleted")
	ErrInvalidLevel    = errors.New("level must be between 0 and 4")
)

type ProfileService interface {
	CreateProfile(ctx context.Context, profile *Profile) (*Profile, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	UpdateProfile(ctx context.Context, id string, profile *Profile) error
	DeleteProfile(ctx context.Context, id string) error

	SetModuleLevel(ctx context.Context, profileID, moduleName string, level int) (string, error)
	AccessibleModules(ctx context.Context, principal *common_models.Principal) ([]catalog.Module, error)

	BindUser(ctx context.Context, binding *Binding) error
	ResolvePrincipal(ctx context.Context, userID string) (*common_models.Principal, error)
}

type ProfileServiceImpl struct {
	ProfileRepo    ProfileRepository
	BindingRepo    BindingRepository
	UserRepo       user.UserRepository
	CatalogService catalog.CatalogService
	FieldPolicies  fieldpolicy.FieldPolicyService
	DataFilters    datafilter.DataFilterService
	DataScopes     datascope.DataScopeService
	Dropdowns      dropdown.DropdownService
	AuditService   audit.AuditService
	Log            *zap.Logger
}

func NewProfileService(
	profileRepo ProfileRepository,
	bindingRepo BindingRepository,
	userRepo user.UserRepository,
	catalogService catalog.CatalogService,
	fieldPolicies fieldpolicy.FieldPolicyService,
	dataFilters datafilter.DataFilterService,
	dataScopes datascope.DataScopeService,
	dropdowns dropdown.DropdownService,
	auditService audit.AuditService,
	log *zap.Logger,
) ProfileService {
	return &ProfileServiceImpl{
		ProfileRepo:    profileRepo,
		BindingRepo:    bindingRepo,
		UserRepo:       userRepo,
		CatalogService: catalogService,
		FieldPolicies:  fieldPolicies,
		DataFilters:    dataFilters,
		DataScopes:     dataScopes,
		Dropdowns:      dropdowns,
		AuditService:   auditService,
		Log:            log,
	}
}

func (s *ProfileServiceImpl) CreateProfile(ctx context.Context, profile *Profile) (*Profile, error) {
	if profile.Name == "" {
		return nil, fmt.Errorf("profile name is required")
	}
	if existing, err := s.ProfileRepo.FindByName(ctx, profile.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("profile %q already exists", profile.Name)
	}

	profile.ID = primitive.NewObjectID()
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if err := s.ProfileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}

	s.AuditService.Event(ctx, "profiles", common_models.AuditActionCreate,
		fmt.Sprintf("Created profile %q", profile.Name), common_models.SeverityMedium)
	return profile, nil
}

func (s *ProfileServiceImpl) GetProfile(ctx context.Context, id string) (*Profile, error) {
	profile, err := s.ProfileRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

func (s *ProfileServiceImpl) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.ProfileRepo.List(ctx)
}

func (s *ProfileServiceImpl) UpdateProfile(ctx context.Context, id string, profile *Profile) error {
	profile.UpdatedAt = time.Now()
	if err := s.ProfileRepo.Update(ctx, id, profile); err != nil {
		return err
	}
	s.AuditService.Event(ctx, "profiles", common_models.AuditActionUpdate,
		fmt.Sprintf("Updated profile %q", profile.Name), common_models.SeverityMedium)
	return nil
}

// DeleteProfile removes the profile together with every attachment hanging
// off it, and clears the profile reference from bound users so they drop to
// "no permissions" instead of pointing at a ghost.
func (s *ProfileServiceImpl) DeleteProfile(ctx context.Context, id string) error {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if profile.IsSystem {
		return ErrSystemProfile
	}

	if err := s.FieldPolicies.DeleteByProfileID(ctx, profile.ID); err != nil {
		return err
	}
	if err := s.DataFilters.DeleteByProfileID(ctx, profile.ID); err != nil {
		return err
	}
	if err := s.DataScopes.DeleteByProfileID(ctx, profile.ID); err != nil {
		return err
	}
	if err := s.Dropdowns.DeleteByProfileID(ctx, profile.ID); err != nil {
		return err
	}
	if err := s.BindingRepo.UnbindProfile(ctx, profile.ID); err != nil {
		return err
	}
	if err := s.ProfileRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.AuditService.Event(ctx, "profiles", common_models.AuditActionDelete,
		fmt.Sprintf("Deleted profile %q and its policy attachments", profile.Name),
		common_models.SeverityCritical)
	return nil
}

// SetModuleLevel replaces the profile's permissions for a module with the
// cumulative set up to the requested level. Level 0 clears the module.
func (s *ProfileServiceImpl) SetModuleLevel(ctx context.Context, profileID, moduleName string, level int) (string, error) {
	if level < 0 || level > int(common_models.LevelDelete) {
		return "", ErrInvalidLevel
	}

	profile, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return "", err
	}
	if _, err := s.CatalogService.GetModule(ctx, moduleName); err != nil {
		return "", err
	}

	var refs []PermissionRef
	if level > 0 {
		permissions, err := s.CatalogService.PermissionsUpTo(ctx, moduleName, common_models.PermissionLevel(level))
		if err != nil {
			return "", err
		}
		refs = make([]PermissionRef, 0, len(permissions))
		for _, p := range permissions {
			refs = append(refs, PermissionRef{
				PermissionID: p.ID,
				ModuleName:   p.ModuleName,
				Code:         p.Code,
				Level:        p.Level,
			})
		}
	}

	if err := s.ProfileRepo.SetPermissionsForModule(ctx, profile.ID, moduleName, refs); err != nil {
		return "", err
	}

	var message string
	if level == 0 {
		message = fmt.Sprintf("Cleared %s access for profile %q", moduleName, profile.Name)
	} else {
		message = fmt.Sprintf("Set %s access to %s (%d permissions) for profile %q",
			moduleName, common_models.PermissionLevel(level).String(), len(refs), profile.Name)
	}

	s.AuditService.Event(ctx, "profiles", common_models.AuditActionUpdate, message, common_models.SeverityHigh)
	return message, nil
}

// AccessibleModules lists, in catalog order, the active modules the
// principal holds at least view access on.
func (s *ProfileServiceImpl) AccessibleModules(ctx context.Context, principal *common_models.Principal) ([]catalog.Module, error) {
	modules, err := s.CatalogService.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	if principal != nil && principal.Superuser {
		return modules, nil
	}

	var accessible []catalog.Module
	for _, m := range modules {
		if principal.HasLevel(m.Name, common_models.LevelView) {
			accessible = append(accessible, m)
		}
	}
	return accessible, nil
}

func (s *ProfileServiceImpl) BindUser(ctx context.Context, binding *Binding) error {
	now := time.Now()
	binding.UpdatedAt = now
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = now
	}
	return s.BindingRepo.Upsert(ctx, binding)
}

// ResolvePrincipal builds the per-request principal snapshot: user identity
// plus the grants of the bound profile. A missing binding or a binding
// without a profile yields an active principal with no grants.
func (s *ProfileServiceImpl) ResolvePrincipal(ctx context.Context, userID string) (*common_models.Principal, error) {
	u, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	principal := &common_models.Principal{
		UserID: u.ID.Hex(),
		Name:   u.DisplayName(),
		Active: u.Status == user.StatusActive,
	}

	binding, err := s.BindingRepo.FindByUserID(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return principal, nil
	}

	principal.Active = principal.Active && binding.Active
	principal.Superuser = binding.Superuser
	principal.Team = binding.Team
	if binding.EmployeeName != "" {
		principal.Name = binding.EmployeeName
	}
	if binding.ProfileID == nil {
		return principal, nil
	}

	prof, err := s.ProfileRepo.FindByID(ctx, binding.ProfileID.Hex())
	if err != nil {
		return nil, err
	}
	if prof == nil {
		s.Log.Warn("binding references a missing profile",
			zap.String("user_id", userID),
			zap.String("profile_id", binding.ProfileID.Hex()))
		return principal, nil
	}

	principal.ProfileID = prof.ID.Hex()
	principal.ProfileName = prof.Name
	principal.Grants = prof.Grants()
	return principal, nil
}
