package auth

import (
	"github.com/gofiber/fiber/v2"
)

type AuthApi struct {
	Controller *AuthController
}

func NewAuthApi(controller *AuthController) *AuthApi {
	return &AuthApi{
		Controller: controller,
	}
}

func (a *AuthApi) Setup(app *fiber.App) {
	app.Post("/api/auth/login", a.Controller.Login)
}
