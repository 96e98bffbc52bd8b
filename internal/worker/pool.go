package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/queue"
)

// TaskHandler turns one leased task into a decision.
type TaskHandler interface {
	Handle(ctx context.Context, task *queue.Task) Decision
}

// Pool runs Concurrency independent lease-handle-settle loops over a shared
// queue.
type Pool struct {
	queue   queue.Queue
	handler TaskHandler
	cfg     config.WorkerConfig
	logger  *zap.Logger
}

// NewPool instantiates a pool.
func NewPool(q queue.Queue, handler TaskHandler, cfg config.WorkerConfig, logger *zap.Logger) *Pool {
	return &Pool{queue: q, handler: handler, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled and every worker has finished its
// in-flight task.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		log := p.logger.With(zap.Int("worker", i))
		g.Go(func() error {
			p.loop(ctx, log)
			return nil
		})
	}
	p.logger.Info("worker pool started", zap.Int("concurrency", p.cfg.Concurrency))
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, log *zap.Logger) {
	for ctx.Err() == nil {
		task, err := p.queue.Lease(ctx, p.cfg.LeaseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, queue.ErrEmpty) {
				log.Warn("lease failed", zap.Error(err))
			}
			if !sleep(ctx, p.cfg.PollInterval) {
				return
			}
			continue
		}

		// A started task runs to a decision even during shutdown; the hard
		// deadline bounds how long that takes.
		taskCtx := context.WithoutCancel(ctx)
		decision := p.handler.Handle(taskCtx, task)
		p.settle(taskCtx, log, task, decision)
	}
}

func (p *Pool) settle(ctx context.Context, log *zap.Logger, task *queue.Task, decision Decision) {
	var err error
	switch decision.Kind {
	case DecisionRetry:
		if decision.NextAttempt {
			task.Attempt++
		}
		err = p.queue.Requeue(ctx, task, decision.Delay)
	default:
		err = p.queue.Ack(ctx, task)
	}

	fields := []zap.Field{
		zap.String("ticket_id", task.TicketID),
		zap.String("decision", decision.Kind.String()),
		zap.String("reason", decision.Reason),
	}
	switch {
	case errors.Is(err, queue.ErrLeaseLost):
		log.Warn("lease expired before the task was settled", fields...)
	case err != nil:
		log.Error("settle task", append(fields, zap.Error(err))...)
	default:
		log.Debug("task settled", fields...)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
