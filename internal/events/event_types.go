package events

import (
	"time"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketUpdate   EventType = "ticket_update"
	EventTicketResolved EventType = "ticket_resolved"
)

// Types lists every event type, for handlers that want all of them.
func Types() []EventType {
	return []EventType{EventTicketCreated, EventTicketUpdate, EventTicketResolved}
}

// Event represents a ticket state change emitted by services and workers.
type Event struct {
	ID         string              `json:"id"`
	Type       EventType           `json:"type"`
	TicketID   string              `json:"ticket_id"`
	Status     domain.TicketStatus `json:"status,omitempty"`
	ResolvedBy string              `json:"resolved_by,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Data       map[string]any      `json:"data,omitempty"`
}

// TicketCreated builds the event raised after intake.
func TicketCreated(ticket *domain.Ticket) Event {
	return Event{
		Type:     EventTicketCreated,
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Data:     map[string]any{"title": ticket.Title},
	}
}

// TicketUpdated builds the event raised after a pipeline transition.
func TicketUpdated(ticket *domain.Ticket) Event {
	data := map[string]any{"processing_attempts": ticket.ProcessingAttempts}
	if ticket.ErrorMessage != nil {
		data["error"] = *ticket.ErrorMessage
	}
	if ticket.Category != nil {
		data["category"] = string(*ticket.Category)
	}
	if ticket.Urgency != nil {
		data["urgency"] = string(*ticket.Urgency)
	}
	if ticket.SentimentScore != nil {
		data["sentiment_score"] = *ticket.SentimentScore
	}
	return Event{
		Type:     EventTicketUpdate,
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Data:     data,
	}
}

// TicketResolved builds the event raised when an agent resolves a ticket.
func TicketResolved(ticket *domain.Ticket) Event {
	event := Event{
		Type:     EventTicketResolved,
		TicketID: ticket.ID,
		Status:   ticket.Status,
	}
	if ticket.ResolvedBy != nil {
		event.ResolvedBy = *ticket.ResolvedBy
	}
	return event
}
