package record

import (
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RecordApi struct {
	Controller *RecordController
	Auth       *middleware.Auth
	Guard      *middleware.Guard
}

func NewRecordApi(controller *RecordController, auth *middleware.Auth, guard *middleware.Guard) *RecordApi {
	return &RecordApi{
		Controller: controller,
		Auth:       auth,
		Guard:      guard,
	}
}

func (a *RecordApi) Setup(app *fiber.App) {
	// The method-derived level gate makes GET require view, POST create,
	// PUT edit and DELETE delete on the module named in the path.
	records := app.Group("/api/records/:module/:model",
		a.Auth.Handler(), a.Guard.RequireModuleLevelParam("module"))

	records.Get("/", a.Controller.List)
	records.Post("/", a.Controller.Create)
	records.Get("/options/:field", a.Controller.Options)
	records.Get("/:id", a.Controller.Get)
	records.Put("/:id", a.Controller.Update)
	records.Delete("/:id", a.Controller.Delete)
}
