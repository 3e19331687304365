package audit

import (
	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	Controller *AuditController
	Auth       *middleware.Auth
	Guard      *middleware.Guard
}

func NewAuditApi(controller *AuditController, auth *middleware.Auth, guard *middleware.Guard) *AuditApi {
	return &AuditApi{
		Controller: controller,
		Auth:       auth,
		Guard:      guard,
	}
}

func (a *AuditApi) Setup(app *fiber.App) {
	audit := app.Group("/api/audit", a.Auth.Handler(),
		a.Guard.RequireModuleLevel("audit", common_models.LevelView))

	audit.Get("/", a.Controller.List)
	audit.Get("/export", a.Controller.Export)
	audit.Get("/:id", a.Controller.Get)
	audit.Post("/purge",
		a.Guard.RequireModuleLevel("audit", common_models.LevelDelete),
		a.Controller.Purge)
}
