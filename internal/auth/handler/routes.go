package handler

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	app.Post("/api/v1/register", h.Register)
	app.Post("/api/v1/login", h.Login)
	app.Post("/api/v1/refresh", h.Refresh)

	// Role management is admin-only.
	admin := app.Group("/api/v1/admin", h.RequireRole("admin"))
	admin.Post("/identities/:id/roles", h.AssignRole)
	admin.Delete("/identities/:id/roles/:name", h.RevokeRole)
}
