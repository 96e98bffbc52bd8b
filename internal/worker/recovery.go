package worker

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
)

const sweepBatch = 100

var errStaleProcessing = errors.New("processing was interrupted")

// Recovery returns tickets left in PROCESSING by a crashed worker to the
// pipeline and re-enqueues PENDING tickets that lost their task. A
// redelivered task for a PROCESSING ticket is acked as a duplicate, so
// without the sweep such a ticket would never leave PROCESSING.
type Recovery struct {
	repo       repository.TicketRepository
	queue      queue.Queue
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.WorkerConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecovery instantiates the sweep.
func NewRecovery(
	repo repository.TicketRepository,
	q queue.Queue,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	cfg config.WorkerConfig,
	logger *zap.Logger,
) *Recovery {
	return &Recovery{
		repo:       repo,
		queue:      q,
		dispatcher: dispatcher,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep moves every ticket that has been PROCESSING for longer than
// StaleAfter back to PENDING, or to FAILED once its attempts are used up. It
// returns the number of tickets moved.
func (r *Recovery) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.StaleAfter)
	stale, err := r.repo.ListStale(ctx, domain.TicketStatusProcessing, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	moved := 0
	for i := range stale {
		ticket := &stale[i]
		log := r.logger.With(zap.String("ticket_id", ticket.ID), zap.Int("processing_attempts", ticket.ProcessingAttempts))

		next := domain.TicketStatusPending
		msg := RetryMessage(ticket.ProcessingAttempts, r.cfg.MaxAttempts, errStaleProcessing)
		if ticket.ProcessingAttempts >= r.cfg.MaxAttempts {
			next = domain.TicketStatusFailed
			msg = FailureMessage(ticket.ProcessingAttempts, errStaleProcessing)
		}

		updated, err := r.repo.Transition(ctx, ticket.ID, domain.TicketStatusProcessing, next,
			domain.TransitionUpdate{ErrorMessage: &msg, Note: "recovered stale processing"})
		if errors.Is(err, repository.ErrConcurrencyConflict) || errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Error("recover stale ticket", zap.Error(err))
			continue
		}

		if next == domain.TicketStatusPending {
			if err := r.queue.Enqueue(ctx, ticket.ID); err != nil {
				log.Error("re-enqueue recovered ticket", zap.Error(err))
			}
		}
		log.Warn("recovered stale processing ticket", zap.String("status", string(next)))
		r.metrics.RecordOutcome(observability.OutcomeRecovered)
		if r.dispatcher != nil {
			_ = r.dispatcher.Publish(ctx, events.TicketUpdated(updated))
		}
		moved++
	}

	r.requeueOrphans(ctx, cutoff)
	return moved, nil
}

// requeueOrphans enqueues PENDING tickets that have waited past the cutoff.
// Enqueue is idempotent, so tickets whose task is still queued are untouched;
// this only matters when the enqueue after intake or a retry was lost.
func (r *Recovery) requeueOrphans(ctx context.Context, cutoff time.Time) {
	pending, err := r.repo.ListStale(ctx, domain.TicketStatusPending, cutoff, sweepBatch)
	if err != nil {
		r.logger.Error("list stale pending tickets", zap.Error(err))
		return
	}
	for _, ticket := range pending {
		if err := r.queue.Enqueue(ctx, ticket.ID); err != nil {
			r.logger.Error("re-enqueue pending ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

// Start runs Sweep once immediately and then every SweepInterval until ctx
// is cancelled.
func (r *Recovery) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(r.cfg.SweepInterval),
		gocron.NewTask(func() {
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("stale processing sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	r.logger.Info("stale processing sweep scheduled", zap.Duration("interval", r.cfg.SweepInterval))

	<-ctx.Done()
	return scheduler.Shutdown()
}
