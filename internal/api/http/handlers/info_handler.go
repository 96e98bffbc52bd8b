package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/notify"
	"github.com/spec-kit/complaint-triage/internal/observability"
)

// InfoHandler exposes service metadata and in-memory counters.
type InfoHandler struct {
	app     config.AppConfig
	worker  config.WorkerConfig
	queue   config.QueueConfig
	metrics *observability.Metrics
	hub     *notify.Hub
}

// NewInfoHandler constructs handler.
func NewInfoHandler(cfg *config.Config, metrics *observability.Metrics, hub *notify.Hub) *InfoHandler {
	return &InfoHandler{app: cfg.App, worker: cfg.Worker, queue: cfg.Queue, metrics: metrics, hub: hub}
}

// Root GET /.
func (h *InfoHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": h.app.Name,
		"version": h.app.Version,
		"status":  "running",
	})
}

// Info GET /api/info.
func (h *InfoHandler) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     h.app.Name,
		"version":     h.app.Version,
		"environment": h.app.Env,
		"pipeline": fiber.Map{
			"queue_backend":   h.queue.Backend,
			"embedded_worker": h.worker.Embedded,
			"concurrency":     h.worker.Concurrency,
			"max_attempts":    h.worker.MaxAttempts,
			"retry_delay_s":   h.worker.RetryDelay.Seconds(),
			"hard_deadline_s": h.worker.HardDeadline.Seconds(),
			"soft_deadline_s": h.worker.SoftDeadline.Seconds(),
		},
		"endpoints": fiber.Map{
			"tickets":   "/api/tickets",
			"stats":     "/api/tickets/stats/summary",
			"websocket": "/ws/tickets",
			"health":    "/health",
			"metrics":   "/metrics",
		},
	})
}

// Metrics GET /metrics.
func (h *InfoHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"counters":    h.metrics.Snapshot(),
		"subscribers": h.hub.Count(),
	})
}
