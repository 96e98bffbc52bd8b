// Package bootstrap builds the storage backends shared by the api and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/persistence"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
)

// TicketRepository returns the Postgres repository when a pool is
// configured, applying migrations first, and the in-memory one otherwise.
func TicketRepository(ctx context.Context, cfg config.PostgresConfig, pg *persistence.Postgres, logger *zap.Logger) (repository.TicketRepository, error) {
	if !pg.Enabled() {
		logger.Warn("using in-memory ticket repository; tickets are lost on restart")
		return repository.NewMemoryTicketRepository(), nil
	}
	if cfg.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, persistence.DefaultMigrationsDir, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return repository.NewTicketRepository(pg.Pool), nil
}

// NeedsRedis reports whether the process talks to Redis at all.
func NeedsRedis(cfg *config.Config) bool {
	return cfg.Queue.Backend == config.QueueBackendRedis || !cfg.Worker.Embedded
}

// TaskQueue returns the queue selected by QUEUE_BACKEND.
func TaskQueue(cfg config.QueueConfig, rdb *persistence.Redis, logger *zap.Logger) (queue.Queue, error) {
	switch cfg.Backend {
	case config.QueueBackendMemory:
		logger.Warn("using in-memory task queue; queued tickets are lost on restart")
		return queue.NewMemoryQueue(), nil
	case config.QueueBackendRedis:
		if rdb == nil || rdb.Client == nil {
			return nil, fmt.Errorf("queue backend %q requires a redis client", cfg.Backend)
		}
		return queue.NewRedisQueue(rdb.Client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
