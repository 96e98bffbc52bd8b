package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs the
// single-process deployment and the test suites; every method holds one
// mutex, so Transition is atomic with respect to every other call.
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	history map[string][]domain.TicketHistory
	now     func() time.Time
}

// NewMemoryTicketRepository instantiates an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		history: make(map[string][]domain.TicketHistory),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *MemoryTicketRepository) WithClock(now func() time.Time) *MemoryTicketRepository {
	r.now = now
	return r
}

func (r *MemoryTicketRepository) Create(_ context.Context, input domain.NewTicket) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ticket := &domain.Ticket{
		ID:            uuid.NewString(),
		Title:         input.Title,
		Description:   input.Description,
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		Status:        domain.TicketStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ticket = ticket.Clone()
	r.tickets[ticket.ID] = ticket
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) Get(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) Transition(_ context.Context, id string, expected, next domain.TicketStatus, update domain.TransitionUpdate) (*domain.Ticket, error) {
	if !domain.IsValidTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, expected, next)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ticket.Status != expected {
		return nil, ErrConcurrencyConflict
	}

	now := r.now()
	update.Apply(ticket, next, now)
	r.history[id] = append(r.history[id], domain.TicketHistory{
		ID:         uuid.NewString(),
		TicketID:   id,
		FromStatus: expected,
		ToStatus:   next,
		Attempt:    ticket.ProcessingAttempts,
		Note:       historyNote(update),
		CreatedAt:  now,
	})
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	filter = filter.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Urgency != nil && (t.Urgency == nil || *t.Urgency != *filter.Urgency) {
			continue
		}
		if filter.Category != nil && (t.Category == nil || *t.Category != *filter.Category) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []domain.Ticket{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	page := make([]domain.Ticket, 0, end-filter.Offset)
	for _, t := range matched[filter.Offset:end] {
		page = append(page, *t.Clone())
	}
	return page, total, nil
}

func (r *MemoryTicketRepository) UpdateAgentFields(_ context.Context, id string, finalResponse, agentNotes *string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if finalResponse != nil {
		v := *finalResponse
		ticket.FinalResponse = &v
	}
	if agentNotes != nil {
		v := *agentNotes
		ticket.AgentNotes = &v
	}
	ticket.UpdatedAt = r.now()
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(r.tickets, id)
	delete(r.history, id)
	return nil
}

func (r *MemoryTicketRepository) Stats(_ context.Context) (domain.TicketStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.TicketStats{
		Total:     len(r.tickets),
		ByStatus:  make(map[domain.TicketStatus]int),
		ByUrgency: make(map[domain.TicketUrgency]int),
	}
	for _, t := range r.tickets {
		stats.ByStatus[t.Status]++
		if t.Urgency != nil {
			stats.ByUrgency[*t.Urgency]++
		}
	}
	return stats, nil
}

func (r *MemoryTicketRepository) History(_ context.Context, id string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return nil, ErrNotFound
	}
	entries := make([]domain.TicketHistory, len(r.history[id]))
	copy(entries, r.history[id])
	return entries, nil
}

func (r *MemoryTicketRepository) ListStale(_ context.Context, status domain.TicketStatus, updatedBefore time.Time, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == status && t.UpdatedAt.Before(updatedBefore) {
			stale = append(stale, *t.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

var _ TicketRepository = (*MemoryTicketRepository)(nil)
