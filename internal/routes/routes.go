package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/metabuild-lab/labcore"
	"github.com/metabuild-lab/labcore/internal/config"
)

// Setup registers the API routes. Authentication is handled upstream; the
// token middleware only extracts the already-issued principal claims.
func Setup(app *fiber.App, h *Handler, jwtCfg config.JWTConfig) {
	app.Get("/healthz", h.health)

	api := app.Group("/api/v1", AuthMiddleware(jwtCfg))

	api.Get("/navigation", h.navigation)
	api.Post("/permissions/check", h.checkPermissions)

	jobs := api.Group("/jobs")
	jobs.Get("/", h.listJobs)
	jobs.Post("/", h.RequirePermission(labcore.ModuleOperations, labcore.VerbCreate), h.createJob)
	jobs.Get("/:id", h.getJob)
	jobs.Post("/:id/transitions", h.RequirePermission(labcore.ModuleOperations, labcore.VerbView), h.applyTransition)
}
