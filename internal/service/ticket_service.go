package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
	apperrors "github.com/spec-kit/complaint-triage/pkg/util/errorutil"
)

// TicketService coordinates intake and agent workflows. It never writes
// status itself except through the repository's conditional transition.
type TicketService struct {
	tickets    repository.TicketRepository
	queue      queue.Queue
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Queue      queue.Queue
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// CreateTicket stores a PENDING ticket and enqueues it for analysis once the
// row is committed.
func (s *TicketService) CreateTicket(ctx context.Context, input domain.NewTicket) (*domain.Ticket, error) {
	ticket, err := s.tickets.Create(ctx, input.Normalize())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.queue.Enqueue(ctx, ticket.ID); err != nil {
		s.logger.Error("enqueue ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewUnavailable("ticket saved but could not be queued for analysis", err)
	}

	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID))
	s.publishEvent(ctx, events.TicketCreated(ticket))
	return ticket, nil
}

// ListTickets returns one page of tickets and the total matching count.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.NewInternalError(err)
	}
	return tickets, total, nil
}

// GetTicket loads one ticket.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err, id)
	}
	return ticket, nil
}

// UpdateTicket edits agent-owned fields. Status is never touched here.
func (s *TicketService) UpdateTicket(ctx context.Context, id string, finalResponse, agentNotes *string) (*domain.Ticket, error) {
	ticket, err := s.tickets.UpdateAgentFields(ctx, id, finalResponse, agentNotes)
	if err != nil {
		return nil, mapRepositoryError(err, id)
	}
	return ticket, nil
}

// ResolveTicket moves a READY ticket to RESOLVED with the agent's reply.
func (s *TicketService) ResolveTicket(ctx context.Context, id string, resolution domain.Resolution) (*domain.Ticket, error) {
	ticket, err := s.tickets.Transition(ctx, id, domain.TicketStatusReady, domain.TicketStatusResolved,
		domain.TransitionUpdate{Resolution: &resolution, Note: "resolved by " + resolution.ResolvedBy})
	if errors.Is(err, repository.ErrConcurrencyConflict) {
		details := map[string]any{"required_status": domain.TicketStatusReady}
		if current, getErr := s.tickets.Get(ctx, id); getErr == nil {
			details["current_status"] = current.Status
		}
		return nil, apperrors.NewConflict("only tickets in ready status can be resolved", details)
	}
	if err != nil {
		return nil, mapRepositoryError(err, id)
	}

	s.logger.Info("ticket resolved", zap.String("ticket_id", id), zap.String("resolved_by", resolution.ResolvedBy))
	s.publishEvent(ctx, events.TicketResolved(ticket))
	return ticket, nil
}

// DeleteTicket removes a ticket. A queued task for it is dropped by the
// worker when leased.
func (s *TicketService) DeleteTicket(ctx context.Context, id string) error {
	if err := s.tickets.Delete(ctx, id); err != nil {
		return mapRepositoryError(err, id)
	}
	s.logger.Info("ticket deleted", zap.String("ticket_id", id))
	return nil
}

// Stats summarizes ticket counts.
func (s *TicketService) Stats(ctx context.Context) (domain.TicketStats, error) {
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return domain.TicketStats{}, apperrors.NewInternalError(err)
	}
	return stats, nil
}

// History returns the transition audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, id string) ([]domain.TicketHistory, error) {
	history, err := s.tickets.History(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err, id)
	}
	return history, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func mapRepositoryError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	case errors.Is(err, repository.ErrConcurrencyConflict):
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"id": id})
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.NewConflict(err.Error(), map[string]any{"id": id})
	default:
		return apperrors.NewInternalError(err)
	}
}
