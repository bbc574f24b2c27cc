package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/alertbridge/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration. Nil handlers are
// left unrouted, so a worker-only process can serve just the probes.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Webhooks    *handlers.WebhookHandler
	DeadLetters *handlers.DeadLettersHandler
	Maintenance *handlers.MaintenanceHandler
	Events      *handlers.EventsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	if cfg.Webhooks != nil {
		app.Post("/w/:endpointID", cfg.Webhooks.Receive)
	}

	if cfg.DeadLetters != nil {
		deadLetters := app.Group("/dead-letters")
		deadLetters.Get("/", cfg.DeadLetters.List)
		deadLetters.Post("/:id/replay", cfg.DeadLetters.Replay)
	}

	if cfg.Maintenance != nil {
		app.Get("/maintenance", cfg.Maintenance.Get)
		app.Put("/maintenance", cfg.Maintenance.Put)
	}

	if cfg.Events != nil {
		app.Get("/events/:correlationID", cfg.Events.ByCorrelation)
	}
}
