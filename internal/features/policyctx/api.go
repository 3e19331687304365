package policyctx

import (
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type PolicyContextApi struct {
	Service PolicyContextService
	Auth    *middleware.Auth
}

func NewPolicyContextApi(service PolicyContextService, auth *middleware.Auth) *PolicyContextApi {
	return &PolicyContextApi{
		Service: service,
		Auth:    auth,
	}
}

func (a *PolicyContextApi) Setup(app *fiber.App) {
	group := app.Group("/api/context", a.Auth.Handler())
	group.Get("/", a.GetContext)
}

// GetContext godoc
// @Summary      Get the caller's permission context
// @Description  Flat map of per-module action booleans, visible field lists and active filter names
// @Tags         context
// @Produce      json
// @Success      200  {object} map[string]interface{}
// @Router       /api/context [get]
func (a *PolicyContextApi) GetContext(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)
	return c.JSON(a.Service.Build(c.UserContext(), principal))
}
