package profile

import (
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ProfileApi struct {
	Controller       *ProfileController
	PolicyController *PolicyController
	Auth             *middleware.Auth
	Guard            *middleware.Guard
}

func NewProfileApi(controller *ProfileController, policyController *PolicyController, auth *middleware.Auth, guard *middleware.Guard) *ProfileApi {
	return &ProfileApi{
		Controller:       controller,
		PolicyController: policyController,
		Auth:             auth,
		Guard:            guard,
	}
}

func (a *ProfileApi) Setup(app *fiber.App) {
	profiles := app.Group("/api/profiles", a.Auth.Handler())
	profiles.Get("/me/modules", a.Controller.AccessibleModules)

	admin := profiles.Group("", a.Guard.RequireSuperuser())
	admin.Post("/", a.Controller.CreateProfile)
	admin.Get("/", a.Controller.ListProfiles)
	admin.Get("/:id", a.Controller.GetProfile)
	admin.Put("/:id", a.Controller.UpdateProfile)
	admin.Delete("/:id", a.Controller.DeleteProfile)
	admin.Post("/bind", a.Controller.BindUser)

	policy := app.Group("/api/policy", a.Auth.Handler(), a.Guard.RequireSuperuser())
	policy.Post("/profile/:id/module/:module/level", a.PolicyController.SetModuleLevel)
	policy.Post("/profile/:id/field", a.PolicyController.UpsertFieldPolicy)
	policy.Get("/module/:module/fields", a.PolicyController.ModuleFields)
	policy.Get("/module/:module/field/:path/choices", a.PolicyController.FieldChoices)
}
