package middleware

import (
	"context"

	"estate-crm/internal/common/models"
)

// PrincipalResolver turns an authenticated user id into the request
// principal snapshot. Declared here so the middleware does not import the
// profile feature; the wiring layer adapts the profile service to it.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (*models.Principal, error)
}
