package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/analysis"
	"github.com/spec-kit/complaint-triage/internal/bootstrap"
	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/persistence"
	"github.com/spec-kit/complaint-triage/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Queue.Backend != config.QueueBackendRedis {
		log.Fatalf("standalone worker requires QUEUE_BACKEND=%s", config.QueueBackendRedis)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App, "worker")
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
	if !pg.Enabled() {
		// The api process could not see tickets kept in this process's memory.
		logger.Fatal("standalone worker requires POSTGRES_DSN")
	}

	ticketRepo, err := bootstrap.TicketRepository(ctx, cfg.Postgres, pg, logger)
	if err != nil {
		logger.Fatal("failed to prepare ticket repository", zap.Error(err))
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	taskQueue, err := bootstrap.TaskQueue(cfg.Queue, redis, logger)
	if err != nil {
		logger.Fatal("failed to build task queue", zap.Error(err))
	}
	defer taskQueue.Close()

	dispatcher := events.NewInMemoryDispatcher(logger)
	events.NewRelay(redis.Client, cfg.Notification.RelayChannel, logger).ForwardAll(dispatcher)

	runner := worker.NewRunner(cfg.Worker, worker.RunnerDependencies{
		TicketRepo: ticketRepo,
		Queue:      taskQueue,
		Analyzer:   analysis.NewClient(cfg.Analysis, nil, logger.Named("analysis")),
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     logger,
	})

	if err := runner.Run(ctx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker shut down")
}
