package middleware

import (
	"context"
	"strings"

	"estate-crm/internal/common/models"
	"estate-crm/internal/config"
	"estate-crm/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Auth validates the bearer token and attaches the resolved principal and
// the request metadata to both fiber locals and the request context.
type Auth struct {
	cfg      *config.Config
	resolver PrincipalResolver
	log      *zap.Logger
}

func NewAuth(cfg *config.Config, resolver PrincipalResolver, log *zap.Logger) *Auth {
	return &Auth{cfg: cfg, resolver: resolver, log: log}
}

func (a *Auth) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a.cfg.SkipAuth {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, a.cfg, "Missing or malformed token")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := utils.ValidateToken(token)
		if err != nil {
			return unauthorized(c, a.cfg, "Invalid or expired token")
		}

		principal, err := a.resolver.ResolvePrincipal(c.UserContext(), claims.UserID)
		if err != nil {
			a.log.Warn("principal resolution failed",
				zap.String("user_id", claims.UserID),
				zap.Error(err))
			return unauthorized(c, a.cfg, "Unknown user")
		}
		if !principal.Active {
			return unauthorized(c, a.cfg, "Account disabled")
		}

		meta := models.RequestMeta{
			IP:        c.IP(),
			UserAgent: c.Get("User-Agent"),
			SessionID: c.Cookies("session_id"),
			Source:    "api",
		}

		c.Locals("user_id", principal.UserID)
		c.Locals("principal", principal)

		ctx := context.WithValue(c.UserContext(), models.PrincipalKey, principal)
		ctx = context.WithValue(ctx, models.RequestMetaKey, meta)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, cfg *config.Config, message string) error {
	if wantsHTML(c) {
		return c.Redirect(cfg.LandingPath, fiber.StatusFound)
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
	})
}

func wantsHTML(c *fiber.Ctx) bool {
	return strings.Contains(c.Get("Accept"), "text/html")
}

// PrincipalFromCtx reads the principal snapshot set by the auth handler.
func PrincipalFromCtx(c *fiber.Ctx) *models.Principal {
	if p, ok := c.Locals("principal").(*models.Principal); ok {
		return p
	}
	if p, ok := c.UserContext().Value(models.PrincipalKey).(*models.Principal); ok {
		return p
	}
	return nil
}
