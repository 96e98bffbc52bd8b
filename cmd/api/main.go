package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/complaint-triage/internal/analysis"
	httptransport "github.com/spec-kit/complaint-triage/internal/api/http"
	"github.com/spec-kit/complaint-triage/internal/api/http/handlers"
	"github.com/spec-kit/complaint-triage/internal/bootstrap"
	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/notify"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/persistence"
	"github.com/spec-kit/complaint-triage/internal/service"
	"github.com/spec-kit/complaint-triage/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App, "api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	ticketRepo, err := bootstrap.TicketRepository(ctx, cfg.Postgres, pg, logger)
	if err != nil {
		logger.Fatal("failed to prepare ticket repository", zap.Error(err))
	}

	var redis *persistence.Redis
	if bootstrap.NeedsRedis(cfg) {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
	}

	taskQueue, err := bootstrap.TaskQueue(cfg.Queue, redis, logger)
	if err != nil {
		logger.Fatal("failed to build task queue", zap.Error(err))
	}
	defer taskQueue.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	hub := notify.NewHub(cfg.Notification, logger)
	service.NewNotificationService(dispatcher, hub, logger).RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Queue:      taskQueue,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Info:      handlers.NewInfoHandler(cfg, metrics, hub),
		Tickets:   handlers.NewTicketsHandler(ticketService),
		Websocket: handlers.NewWebsocketHandler(hub, cfg.App.Name, cfg.Notification.PongWait, logger),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Close()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if cfg.Worker.Embedded {
		runner := worker.NewRunner(cfg.Worker, worker.RunnerDependencies{
			TicketRepo: ticketRepo,
			Queue:      taskQueue,
			Analyzer:   analysis.NewClient(cfg.Analysis, nil, logger.Named("analysis")),
			Dispatcher: dispatcher,
			Metrics:    metrics,
			Logger:     logger.Named("worker"),
		})
		g.Go(func() error { return runner.Run(gctx) })
	} else {
		relay := events.NewRelay(redis.Client, cfg.Notification.RelayChannel, logger)
		g.Go(func() error { return worker.StartNotificationRelay(gctx, relay, dispatcher) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}
