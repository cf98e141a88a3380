// path: routes/routes.go
package routes

import (
	"github.com/gofiber/fiber/v2"

	"civicpulse/controllers"
)

// Register attaches all API endpoints to the app.
func Register(app *fiber.App, h *controllers.Handler) {
	api := app.Group("/api")

	api.Post("/locate", h.HandleLocate)

	api.Post("/reports", h.HandlePostReport)
	api.Get("/reports", h.HandleListReports)
	api.Get("/reports/:id", h.HandleGetReport)

	api.Get("/rewards/:owner", h.HandleGetRewards)

	admin := api.Group("/admin")
	admin.Post("/reports/:id/status", h.HandleUpdateStatus)
}
