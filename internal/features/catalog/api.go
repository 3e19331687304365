package catalog

import (
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CatalogApi struct {
	Controller *CatalogController
	Auth       *middleware.Auth
}

func NewCatalogApi(controller *CatalogController, auth *middleware.Auth) *CatalogApi {
	return &CatalogApi{
		Controller: controller,
		Auth:       auth,
	}
}

func (a *CatalogApi) Setup(app *fiber.App) {
	catalog := app.Group("/api/catalog", a.Auth.Handler())

	catalog.Get("/modules", a.Controller.ListModules)
	catalog.Get("/modules/:module/fields", a.Controller.GetModuleFields)
	catalog.Get("/modules/:module/permissions", a.Controller.ListModulePermissions)
	catalog.Get("/levels", a.Controller.ListLevels)
}
