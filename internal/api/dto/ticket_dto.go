package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

// CreateTicketRequest is the customer intake payload.
type CreateTicketRequest struct {
	Title         string  `json:"title" validate:"required,min=5,max=255"`
	Description   string  `json:"description" validate:"required,min=10"`
	CustomerEmail string  `json:"customer_email" validate:"required,email"`
	CustomerName  *string `json:"customer_name" validate:"omitempty,max=100"`
}

// Trim strips surrounding whitespace before validation.
func (r *CreateTicketRequest) Trim() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
}

// ToDomain maps the payload to repository input.
func (r CreateTicketRequest) ToDomain() domain.NewTicket {
	return domain.NewTicket{
		Title:         r.Title,
		Description:   r.Description,
		CustomerEmail: r.CustomerEmail,
		CustomerName:  r.CustomerName,
	}.Normalize()
}

// CreateTicketResponse is returned immediately after intake.
type CreateTicketResponse struct {
	ID      string              `json:"id"`
	Status  domain.TicketStatus `json:"status"`
	Message string              `json:"message"`
}

// UpdateTicketRequest edits agent fields. Status is never writable here.
type UpdateTicketRequest struct {
	FinalResponse *string `json:"final_response"`
	AgentNotes    *string `json:"agent_notes"`
}

// ResolveTicketRequest closes a READY ticket.
type ResolveTicketRequest struct {
	FinalResponse string  `json:"final_response" validate:"required,min=10"`
	AgentNotes    *string `json:"agent_notes"`
	ResolvedBy    string  `json:"resolved_by" validate:"required,min=2,max=100"`
}

// Trim strips surrounding whitespace before validation.
func (r *ResolveTicketRequest) Trim() {
	r.FinalResponse = strings.TrimSpace(r.FinalResponse)
	r.ResolvedBy = strings.TrimSpace(r.ResolvedBy)
}

// ToDomain maps the payload to a resolution.
func (r ResolveTicketRequest) ToDomain() domain.Resolution {
	return domain.Resolution{
		FinalResponse: r.FinalResponse,
		AgentNotes:    r.AgentNotes,
		ResolvedBy:    r.ResolvedBy,
	}
}

// TicketResponse is the full agent view of a ticket.
type TicketResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	CustomerEmail string  `json:"customer_email"`
	CustomerName  *string `json:"customer_name"`

	Category       *domain.TicketCategory `json:"category"`
	SentimentScore *int                   `json:"sentiment_score"`
	Urgency        *domain.TicketUrgency  `json:"urgency"`
	DraftResponse  *string                `json:"draft_response"`

	FinalResponse *string    `json:"final_response"`
	AgentNotes    *string    `json:"agent_notes"`
	ResolvedBy    *string    `json:"resolved_by"`
	ResolvedAt    *time.Time `json:"resolved_at"`

	Status             domain.TicketStatus `json:"status"`
	ErrorMessage       *string             `json:"error_message"`
	ProcessingAttempts int                 `json:"processing_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TicketListResponse pages through tickets.
type TicketListResponse struct {
	Total int              `json:"total"`
	Items []TicketResponse `json:"items"`
}

// HistoryEntryResponse is one audit trail row.
type HistoryEntryResponse struct {
	ID         string              `json:"id"`
	FromStatus domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus `json:"to_status"`
	Attempt    int                 `json:"attempt"`
	Note       *string             `json:"note,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// HistoryResponse lists a ticket's transitions, oldest first.
type HistoryResponse struct {
	TicketID string                 `json:"ticket_id"`
	Items    []HistoryEntryResponse `json:"items"`
}

// StatsResponse summarizes ticket counts.
type StatsResponse struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	ByUrgency map[string]int `json:"by_urgency"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		CustomerEmail:      t.CustomerEmail,
		CustomerName:       t.CustomerName,
		Category:           t.Category,
		SentimentScore:     t.SentimentScore,
		Urgency:            t.Urgency,
		DraftResponse:      t.DraftResponse,
		FinalResponse:      t.FinalResponse,
		AgentNotes:         t.AgentNotes,
		ResolvedBy:         t.ResolvedBy,
		ResolvedAt:         t.ResolvedAt,
		Status:             t.Status,
		ErrorMessage:       t.ErrorMessage,
		ProcessingAttempts: t.ProcessingAttempts,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func NewTicketListResponse(tickets []domain.Ticket, total int) TicketListResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return TicketListResponse{Total: total, Items: items}
}

func NewHistoryResponse(ticketID string, entries []domain.TicketHistory) HistoryResponse {
	items := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryEntryResponse{
			ID:         e.ID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Attempt:    e.Attempt,
			Note:       e.Note,
			CreatedAt:  e.CreatedAt,
		})
	}
	return HistoryResponse{TicketID: ticketID, Items: items}
}

// NewStatsResponse reports every status and urgency, including zero counts.
func NewStatsResponse(stats domain.TicketStats) StatsResponse {
	resp := StatsResponse{
		Total:     stats.Total,
		ByStatus:  make(map[string]int),
		ByUrgency: make(map[string]int),
	}
	for _, s := range domain.Statuses() {
		resp.ByStatus[string(s)] = stats.ByStatus[s]
	}
	for _, u := range domain.Urgencies() {
		resp.ByUrgency[string(u)] = stats.ByUrgency[u]
	}
	return resp
}
