package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/analysis"
	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
)

var errAttemptBudget = errors.New("attempt budget exhausted")

// Analyzer enriches one ticket. *analysis.Client implements it.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error)
}

// DecisionKind says what the pool does with a task after handling.
type DecisionKind int

const (
	// DecisionAck removes the task.
	DecisionAck DecisionKind = iota
	// DecisionRetry makes the task visible again after Delay.
	DecisionRetry
	// DecisionDeadLetter removes the task after the attempt budget ran out.
	DecisionDeadLetter
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionRetry:
		return "retry"
	case DecisionDeadLetter:
		return "dead_letter"
	default:
		return "ack"
	}
}

// Decision is the outcome of handling one task.
type Decision struct {
	Kind  DecisionKind
	Delay time.Duration
	// NextAttempt is set when a retry consumes an attempt.
	NextAttempt bool
	Reason      string
}

// Ack acknowledges the task.
func Ack(reason string) Decision { return Decision{Kind: DecisionAck, Reason: reason} }

// Retry schedules another delivery after delay.
func Retry(delay time.Duration, nextAttempt bool, reason string) Decision {
	return Decision{Kind: DecisionRetry, Delay: delay, NextAttempt: nextAttempt, Reason: reason}
}

// DeadLetter drops the task for good.
func DeadLetter(reason string) Decision { return Decision{Kind: DecisionDeadLetter, Reason: reason} }

// Processor drives a single task through the ticket lifecycle. It never
// holds a lock across the analysis call; the repository's conditional
// transition is the only guard against concurrent handling of one ticket.
type Processor struct {
	repo       repository.TicketRepository
	analyzer   Analyzer
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.WorkerConfig
	logger     *zap.Logger
}

// NewProcessor instantiates a processor.
func NewProcessor(
	repo repository.TicketRepository,
	analyzer Analyzer,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	cfg config.WorkerConfig,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		repo:       repo,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Handle processes task and returns what should happen to it. It never
// returns an error: every failure becomes a decision.
func (p *Processor) Handle(ctx context.Context, task *queue.Task) Decision {
	log := p.logger.With(zap.String("ticket_id", task.TicketID), zap.Int("delivery_attempt", task.Attempt))

	ticket, err := p.repo.Get(ctx, task.TicketID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Info("ticket no longer exists, dropping task")
		p.metrics.RecordOutcome(observability.OutcomeNotFound)
		return Ack("ticket not found")
	case err != nil:
		log.Error("load ticket", zap.Error(err))
		return Retry(p.cfg.RetryDelay, false, "load ticket failed")
	}

	if ticket.Status != domain.TicketStatusPending {
		log.Debug("ticket not pending, treating as duplicate delivery", zap.String("status", string(ticket.Status)))
		p.metrics.RecordOutcome(observability.OutcomeDuplicate)
		return Ack("duplicate delivery")
	}
	if ticket.ProcessingAttempts >= p.cfg.MaxAttempts {
		return p.exhaust(ctx, log, ticket)
	}

	leased, err := p.repo.Transition(ctx, ticket.ID, domain.TicketStatusPending, domain.TicketStatusProcessing,
		domain.TransitionUpdate{IncrementAttempts: true})
	if decision, done := p.settleTransitionError(log, err); done {
		return decision
	}
	if err != nil {
		log.Error("claim ticket", zap.Error(err))
		return Retry(p.cfg.RetryDelay, false, "claim failed")
	}
	p.publish(ctx, events.TicketUpdated(leased))

	log = log.With(zap.Int("processing_attempt", leased.ProcessingAttempts))
	result, err := p.analyze(ctx, log, leased)
	if err == nil {
		return p.complete(ctx, log, leased, result)
	}
	return p.fail(ctx, log, leased, err)
}

// analyze runs the analyzer under the hard deadline. The soft deadline only
// logs.
func (p *Processor) analyze(ctx context.Context, log *zap.Logger, ticket *domain.Ticket) (domain.AnalysisResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.HardDeadline)
	defer cancel()

	if p.cfg.SoftDeadline > 0 {
		soft := time.AfterFunc(p.cfg.SoftDeadline, func() {
			log.Warn("analysis passed soft deadline", zap.Duration("soft_deadline", p.cfg.SoftDeadline))
		})
		defer soft.Stop()
	}

	type outcome struct {
		result domain.AnalysisResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		result, err := p.analyzer.Analyze(callCtx, analysis.Input{
			Title:        ticket.Title,
			Description:  ticket.Description,
			CustomerName: ticket.CustomerName,
		})
		done <- outcome{result: result, err: err}
	}()

	defer func() { p.metrics.RecordAnalysis(time.Since(start)) }()
	select {
	case out := <-done:
		if out.err != nil {
			return domain.AnalysisResult{}, out.err
		}
		// Results that skipped the client's parser are validated here too.
		if err := out.result.Validate(); err != nil {
			var fieldErr *domain.FieldError
			if errors.As(err, &fieldErr) {
				return domain.AnalysisResult{}, &analysis.ValidationError{Field: fieldErr.Field, Message: fieldErr.Message}
			}
			return domain.AnalysisResult{}, &analysis.ValidationError{Message: err.Error()}
		}
		return out.result, nil
	case <-callCtx.Done():
		return domain.AnalysisResult{}, &analysis.ProviderError{Timeout: true, Message: "hard deadline exceeded", Err: callCtx.Err()}
	}
}

func (p *Processor) complete(ctx context.Context, log *zap.Logger, ticket *domain.Ticket, result domain.AnalysisResult) Decision {
	ready, err := p.repo.Transition(ctx, ticket.ID, domain.TicketStatusProcessing, domain.TicketStatusReady,
		domain.TransitionUpdate{Analysis: &result, ClearError: true})
	if decision, done := p.settleTransitionError(log, err); done {
		return decision
	}
	if err != nil {
		// The ticket stays PROCESSING; the recovery sweep picks it up.
		log.Error("store analysis result", zap.Error(err))
		return Ack("store result failed")
	}

	log.Info("ticket analyzed",
		zap.String("category", string(result.Category)),
		zap.String("urgency", string(result.Urgency)),
		zap.Int("sentiment_score", result.SentimentScore))
	p.metrics.RecordOutcome(observability.OutcomeReady)
	p.publish(ctx, events.TicketUpdated(ready))
	return Ack("ready")
}

func (p *Processor) fail(ctx context.Context, log *zap.Logger, ticket *domain.Ticket, cause error) Decision {
	attempts := ticket.ProcessingAttempts

	if attempts < p.cfg.MaxAttempts {
		msg := RetryMessage(attempts, p.cfg.MaxAttempts, cause)
		pending, err := p.repo.Transition(ctx, ticket.ID, domain.TicketStatusProcessing, domain.TicketStatusPending,
			domain.TransitionUpdate{ErrorMessage: &msg})
		if decision, done := p.settleTransitionError(log, err); done {
			return decision
		}
		if err != nil {
			log.Error("record retry", zap.Error(err))
			return Ack("record retry failed")
		}
		log.Warn("analysis failed, retrying", zap.Error(cause), zap.Duration("delay", p.cfg.RetryDelay))
		p.metrics.RecordOutcome(observability.OutcomeRetried)
		p.publish(ctx, events.TicketUpdated(pending))
		return Retry(p.cfg.RetryDelay, true, msg)
	}

	msg := FailureMessage(attempts, cause)
	failed, err := p.repo.Transition(ctx, ticket.ID, domain.TicketStatusProcessing, domain.TicketStatusFailed,
		domain.TransitionUpdate{ErrorMessage: &msg})
	if decision, done := p.settleTransitionError(log, err); done {
		return decision
	}
	if err != nil {
		log.Error("record failure", zap.Error(err))
		return Ack("record failure failed")
	}
	log.Error("analysis failed permanently", zap.Error(cause))
	p.metrics.RecordOutcome(observability.OutcomeFailed)
	p.publish(ctx, events.TicketUpdated(failed))
	return DeadLetter(msg)
}

// exhaust fails a PENDING ticket that already used its attempt budget, for
// example after WORKER_MAX_ATTEMPTS was lowered. It passes through PROCESSING
// without counting an attempt since PENDING has no edge to FAILED.
func (p *Processor) exhaust(ctx context.Context, log *zap.Logger, ticket *domain.Ticket) Decision {
	log.Warn("pending ticket already used its attempt budget, failing it",
		zap.Int("processing_attempts", ticket.ProcessingAttempts))

	claimed, err := p.repo.Transition(ctx, ticket.ID, domain.TicketStatusPending, domain.TicketStatusProcessing,
		domain.TransitionUpdate{Note: "attempt budget exhausted"})
	if decision, done := p.settleTransitionError(log, err); done {
		return decision
	}
	if err != nil {
		log.Error("claim exhausted ticket", zap.Error(err))
		return Retry(p.cfg.RetryDelay, false, "claim failed")
	}
	return p.fail(ctx, log, claimed, errAttemptBudget)
}

// settleTransitionError turns the benign transition outcomes into an Ack.
func (p *Processor) settleTransitionError(log *zap.Logger, err error) (Decision, bool) {
	switch {
	case errors.Is(err, repository.ErrConcurrencyConflict):
		log.Debug("ticket changed concurrently, treating as duplicate delivery")
		p.metrics.RecordOutcome(observability.OutcomeDuplicate)
		return Ack("concurrency conflict"), true
	case errors.Is(err, repository.ErrNotFound):
		log.Info("ticket deleted during processing")
		p.metrics.RecordOutcome(observability.OutcomeNotFound)
		return Ack("ticket not found"), true
	}
	return Decision{}, false
}

func (p *Processor) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	_ = p.dispatcher.Publish(ctx, event)
}

// RetryMessage is the error text stored on a ticket that will be retried.
func RetryMessage(attempt, maxAttempts int, cause error) string {
	return fmt.Sprintf("Retry %d/%d: %v", attempt, maxAttempts, cause)
}

// FailureMessage is the error text stored on a ticket that ran out of attempts.
func FailureMessage(attempts int, cause error) string {
	return fmt.Sprintf("Failed after %d attempts: %v", attempts, cause)
}
