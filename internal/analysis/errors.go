package analysis

import (
	"errors"
	"fmt"
)

// ProviderError reports a transport failure, a non-2xx response or an
// exceeded deadline.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return "analysis provider timed out"
	case e.StatusCode != 0 && e.Type != "":
		return fmt.Sprintf("analysis provider returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("analysis provider returned %d: %s", e.StatusCode, e.Message)
	default:
		return "analysis provider: " + e.Message
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError reports a provider response that does not satisfy the
// result contract. Field names the offending field when one is known.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid analysis response: " + e.Message
	}
	return fmt.Sprintf("invalid analysis response: %s: %s", e.Field, e.Message)
}

// IsRetryable reports whether err is one of the analysis failures that count
// against a ticket's attempt budget.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	var validationErr *ValidationError
	return errors.As(err, &providerErr) || errors.As(err, &validationErr)
}
