package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusProcessing TicketStatus = "processing"
	TicketStatusReady      TicketStatus = "ready"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusFailed     TicketStatus = "failed"
)

// TicketCategory is the complaint category assigned by analysis.
type TicketCategory string

const (
	CategoryBilling        TicketCategory = "billing"
	CategoryTechnical      TicketCategory = "technical"
	CategoryFeatureRequest TicketCategory = "feature_request"
)

// TicketUrgency is the urgency assigned by analysis.
type TicketUrgency string

const (
	UrgencyHigh   TicketUrgency = "high"
	UrgencyMedium TicketUrgency = "medium"
	UrgencyLow    TicketUrgency = "low"
)

const (
	MinSentimentScore = 1
	MaxSentimentScore = 10
)

// ErrInvalidTransition is returned when a status change is not an edge of the
// lifecycle graph.
var ErrInvalidTransition = errors.New("invalid status transition")

var (
	statuses   = []TicketStatus{TicketStatusPending, TicketStatusProcessing, TicketStatusReady, TicketStatusResolved, TicketStatusFailed}
	categories = []TicketCategory{CategoryBilling, CategoryTechnical, CategoryFeatureRequest}
	urgencies  = []TicketUrgency{UrgencyHigh, UrgencyMedium, UrgencyLow}
)

// ParseTicketStatus rejects anything outside the closed status set.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	for _, s := range statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown ticket status %q", raw)
}

// ParseTicketCategory rejects anything outside the closed category set.
func ParseTicketCategory(raw string) (TicketCategory, error) {
	for _, c := range categories {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown ticket category %q", raw)
}

// ParseTicketUrgency rejects anything outside the closed urgency set.
func ParseTicketUrgency(raw string) (TicketUrgency, error) {
	for _, u := range urgencies {
		if string(u) == raw {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown ticket urgency %q", raw)
}

func (s TicketStatus) String() string   { return string(s) }
func (c TicketCategory) String() string { return string(c) }
func (u TicketUrgency) String() string  { return string(u) }

// Terminal reports whether the pipeline never moves a ticket out of s.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusFailed
}

// Statuses returns the closed status set in lifecycle order.
func Statuses() []TicketStatus { return append([]TicketStatus(nil), statuses...) }

// Urgencies returns the closed urgency set.
func Urgencies() []TicketUrgency { return append([]TicketUrgency(nil), urgencies...) }

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:    {TicketStatusProcessing},
	TicketStatusProcessing: {TicketStatusReady, TicketStatusPending, TicketStatusFailed},
	TicketStatusReady:      {TicketStatusResolved},
	TicketStatusResolved:   {},
	TicketStatusFailed:     {},
}

// IsValidTransition reports whether current -> next is an edge of the lifecycle graph.
func IsValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for a customer complaint. Values returned by the
// repository are copies; mutation goes through the repository only.
type Ticket struct {
	ID            string
	Title         string
	Description   string
	CustomerEmail string
	CustomerName  *string

	Category       *TicketCategory
	SentimentScore *int
	Urgency        *TicketUrgency
	DraftResponse  *string

	FinalResponse *string
	AgentNotes    *string
	ResolvedBy    *string
	ResolvedAt    *time.Time

	Status             TicketStatus
	ErrorMessage       *string
	ProcessingAttempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot alias stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.CustomerName = clonePtr(t.CustomerName)
	c.Category = clonePtr(t.Category)
	c.SentimentScore = clonePtr(t.SentimentScore)
	c.Urgency = clonePtr(t.Urgency)
	c.DraftResponse = clonePtr(t.DraftResponse)
	c.FinalResponse = clonePtr(t.FinalResponse)
	c.AgentNotes = clonePtr(t.AgentNotes)
	c.ResolvedBy = clonePtr(t.ResolvedBy)
	c.ResolvedAt = clonePtr(t.ResolvedAt)
	c.ErrorMessage = clonePtr(t.ErrorMessage)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NewTicket describes the immutable intake fields of a ticket.
type NewTicket struct {
	Title         string
	Description   string
	CustomerEmail string
	CustomerName  *string
}

// Normalize trims intake fields and blanks an empty customer name.
func (n NewTicket) Normalize() NewTicket {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)
	n.CustomerEmail = strings.TrimSpace(n.CustomerEmail)
	if n.CustomerName != nil {
		name := strings.TrimSpace(*n.CustomerName)
		if name == "" {
			n.CustomerName = nil
		} else {
			n.CustomerName = &name
		}
	}
	return n
}

// AnalysisResult is the validated output of one analysis call. It is applied
// to a ticket as a whole or not at all.
type AnalysisResult struct {
	Category       TicketCategory `json:"category"`
	SentimentScore int            `json:"sentiment_score"`
	Urgency        TicketUrgency  `json:"urgency"`
	DraftResponse  string         `json:"draft_response"`
}

// Resolution carries the agent-written fields applied on READY -> RESOLVED.
type Resolution struct {
	FinalResponse string
	AgentNotes    *string
	ResolvedBy    string
}

// TransitionUpdate lists the field writes that accompany a status change.
type TransitionUpdate struct {
	IncrementAttempts bool
	Analysis          *AnalysisResult
	ErrorMessage      *string
	ClearError        bool
	Resolution        *Resolution
	Note              string
}

// Apply writes the update onto t. The caller owns t and has already checked
// the transition.
func (u TransitionUpdate) Apply(t *Ticket, next TicketStatus, now time.Time) {
	t.Status = next
	if u.IncrementAttempts {
		t.ProcessingAttempts++
	}
	if u.Analysis != nil {
		category := u.Analysis.Category
		urgency := u.Analysis.Urgency
		score := u.Analysis.SentimentScore
		draft := u.Analysis.DraftResponse
		t.Category = &category
		t.Urgency = &urgency
		t.SentimentScore = &score
		t.DraftResponse = &draft
	}
	if u.ClearError {
		t.ErrorMessage = nil
	} else if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		t.ErrorMessage = &msg
	}
	if u.Resolution != nil {
		final := u.Resolution.FinalResponse
		by := u.Resolution.ResolvedBy
		resolvedAt := now
		t.FinalResponse = &final
		t.AgentNotes = clonePtr(u.Resolution.AgentNotes)
		t.ResolvedBy = &by
		t.ResolvedAt = &resolvedAt
	}
	t.UpdatedAt = now
}
