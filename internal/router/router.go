package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/config"
	"github.com/noah-isme/certeval-api/internal/database"
	"github.com/noah-isme/certeval-api/internal/handler"
	"github.com/noah-isme/certeval-api/internal/middleware"
	"github.com/noah-isme/certeval-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	StreamHandler     *handler.EvaluationStreamHandler
	ActivityHandler   *handler.ActivityHandler
	SeedHandler       *handler.SeedHandler
	JWTMiddleware     fiber.Handler
	HealthProbes      map[string]database.Probe
	Logger            zerolog.Logger
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes, deps.Logger))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	evaluations := api.Group("/evaluations", jwtMiddleware)
	if deps.StreamHandler != nil {
		deps.StreamHandler.Register(evaluations)
	}
	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(evaluations)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activity", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleAdmin)))
	}

	// Seeding is guarded by its own token rather than user credentials.
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}
}
