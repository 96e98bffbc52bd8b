package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
)

// Runner owns the enrichment pipeline of one process: the worker pool and the
// stale-processing sweep.
type Runner struct {
	Pool     *Pool
	Recovery *Recovery
	sweep    bool
}

// RunnerDependencies bundles collaborators for the pipeline.
type RunnerDependencies struct {
	TicketRepo repository.TicketRepository
	Queue      queue.Queue
	Analyzer   Analyzer
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewRunner wires a processor into a pool and builds the recovery sweep.
func NewRunner(cfg config.WorkerConfig, deps RunnerDependencies) *Runner {
	processor := NewProcessor(deps.TicketRepo, deps.Analyzer, deps.Dispatcher, deps.Metrics, cfg, deps.Logger)
	return &Runner{
		Pool:     NewPool(deps.Queue, processor, cfg, deps.Logger),
		Recovery: NewRecovery(deps.TicketRepo, deps.Queue, deps.Dispatcher, deps.Metrics, cfg, deps.Logger.Named("recovery")),
		sweep:    cfg.SweepInterval > 0,
	}
}

// Run blocks until ctx is cancelled and the pool has drained.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Pool.Run(ctx) })
	if r.sweep {
		g.Go(func() error { return r.Recovery.Start(ctx) })
	}
	return g.Wait()
}
