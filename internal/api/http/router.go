package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-triage/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Info      *handlers.InfoHandler
	Tickets   *handlers.TicketsHandler
	Websocket *handlers.WebsocketHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Info.Root)
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Info.Metrics)

	api := app.Group("/api")
	api.Get("/info", cfg.Info.Info)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats/summary", cfg.Tickets.Stats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/resolve", cfg.Tickets.ResolveTicket)
	tickets.Get("/:id/history", cfg.Tickets.History)

	if cfg.Websocket != nil {
		app.Get("/ws/tickets", cfg.Websocket.RequireUpgrade, cfg.Websocket.Tickets())
	}
}
