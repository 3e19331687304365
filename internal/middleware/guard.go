package middleware

import (
	"estate-crm/internal/common/models"
	"estate-crm/internal/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Guard enforces module-level permissions on routes. Denials answer 403
// with a JSON body for API clients; browser navigations are bounced to the
// landing page with a flash cookie instead.
type Guard struct {
	cfg *config.Config
	log *zap.Logger
}

func NewGuard(cfg *config.Config, log *zap.Logger) *Guard {
	return &Guard{cfg: cfg, log: log}
}

// RequireModuleLevel gates a route on a fixed module and level.
func (g *Guard) RequireModuleLevel(module string, level models.PermissionLevel) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := PrincipalFromCtx(c)
		if principal.HasLevel(module, level) {
			return c.Next()
		}
		return g.deny(c, principal, module, level.String())
	}
}

// RequireModuleAction gates a route on a named permission code.
func (g *Guard) RequireModuleAction(module, code string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := PrincipalFromCtx(c)
		if principal.HasAction(module, code) {
			return c.Next()
		}
		return g.deny(c, principal, module, code)
	}
}

// RequireModuleLevelParam gates a route whose module comes from a path
// parameter, deriving the required level from the HTTP method.
func (g *Guard) RequireModuleLevelParam(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		module := c.Params(param)
		level := levelForMethod(c.Method())

		principal := PrincipalFromCtx(c)
		if principal.HasLevel(module, level) {
			return c.Next()
		}
		return g.deny(c, principal, module, level.String())
	}
}

// RequireSuperuser gates policy administration routes.
func (g *Guard) RequireSuperuser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := PrincipalFromCtx(c)
		if principal != nil && principal.Active && principal.Superuser {
			return c.Next()
		}
		return g.deny(c, principal, "policy", "superuser")
	}
}

func levelForMethod(method string) models.PermissionLevel {
	switch method {
	case fiber.MethodPost:
		return models.LevelCreate
	case fiber.MethodPut, fiber.MethodPatch:
		return models.LevelEdit
	case fiber.MethodDelete:
		return models.LevelDelete
	}
	return models.LevelView
}

func (g *Guard) deny(c *fiber.Ctx, principal *models.Principal, module, requirement string) error {
	actor := ""
	if principal != nil {
		actor = principal.Name
	}
	g.log.Warn("permission denied",
		zap.String("module", module),
		zap.String("requirement", requirement),
		zap.String("actor", actor),
		zap.String("ip", c.IP()))

	if wantsHTML(c) {
		c.Cookie(&fiber.Cookie{
			Name:  "flash_error",
			Value: "You do not have permission to access this section",
			Path:  "/",
		})
		return c.Redirect(g.cfg.LandingPath, fiber.StatusFound)
	}

	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "You do not have permission to perform this action",
	})
}
