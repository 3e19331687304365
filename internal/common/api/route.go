package api

import "github.com/gofiber/fiber/v2"

// Route is implemented by every feature API so Fx can collect and mount them.
type Route interface {
	Setup(app *fiber.App)
}
