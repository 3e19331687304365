package auth

import (
	"context"
	"errors"
	"fmt"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/features/audit"
	"estate-crm/internal/features/profile"
	"estate-crm/internal/features/user"
	"estate-crm/pkg/utils"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// LoginResult carries the token and the resolved principal snapshot so the
// client can render its navigation without a second round trip.
type LoginResult struct {
	Token     string                   `json:"token"`
	Principal *common_models.Principal `json:"principal"`
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

type AuthServiceImpl struct {
	UserRepo       user.UserRepository
	ProfileService profile.ProfileService
	AuditService   audit.AuditService
}

func NewAuthService(userRepo user.UserRepository, profileService profile.ProfileService, auditService audit.AuditService) AuthService {
	return &AuthServiceImpl{
		UserRepo:       userRepo,
		ProfileService: profileService,
		AuditService:   auditService,
	}
}

func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.UserRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}

	// TODO: use bcrypt
	if u.Password != password {
		return nil, ErrInvalidCredentials
	}
	if u.Status != user.StatusActive {
		return nil, ErrInvalidCredentials
	}

	principal, err := s.ProfileService.ResolvePrincipal(ctx, u.ID.Hex())
	if err != nil {
		return nil, err
	}
	if !principal.Active {
		return nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(u.ID, principal.Superuser)
	if err != nil {
		return nil, err
	}

	loginCtx := context.WithValue(ctx, common_models.PrincipalKey, principal)
	s.AuditService.Event(loginCtx, "auth", common_models.AuditActionLogin,
		fmt.Sprintf("User %q logged in", principal.Name), common_models.SeverityLow)

	return &LoginResult{Token: token, Principal: principal}, nil
}
