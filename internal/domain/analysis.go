package domain

import (
	"fmt"
	"strings"
)

// MinDraftResponseLength is the shortest acceptable trimmed draft reply.
const MinDraftResponseLength = 10

// FieldError names the analysis field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the invariants a result must hold before it can be
// persisted on a ticket.
func (r AnalysisResult) Validate() error {
	if _, err := ParseTicketCategory(string(r.Category)); err != nil {
		return &FieldError{Field: "category", Message: fmt.Sprintf("must be one of %s", joinValues(categories))}
	}
	if r.SentimentScore < MinSentimentScore || r.SentimentScore > MaxSentimentScore {
		return &FieldError{Field: "sentiment_score", Message: fmt.Sprintf("must be between %d and %d, got %d", MinSentimentScore, MaxSentimentScore, r.SentimentScore)}
	}
	if _, err := ParseTicketUrgency(string(r.Urgency)); err != nil {
		return &FieldError{Field: "urgency", Message: fmt.Sprintf("must be one of %s", joinValues(urgencies))}
	}
	if len(strings.TrimSpace(r.DraftResponse)) < MinDraftResponseLength {
		return &FieldError{Field: "draft_response", Message: fmt.Sprintf("must be at least %d characters", MinDraftResponseLength)}
	}
	return nil
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
