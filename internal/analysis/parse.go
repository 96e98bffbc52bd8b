package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spec-kit/complaint-triage/internal/domain"
)

var requiredFields = []string{"category", "sentiment_score", "urgency", "draft_response"}

// ParseResult extracts and validates an analysis result from raw model text.
// Code fences and surrounding prose are tolerated; the first balanced JSON
// object is used.
func ParseResult(text string) (domain.AnalysisResult, error) {
	object, ok := firstJSONObject(stripFences(text))
	if !ok {
		return domain.AnalysisResult{}, &ValidationError{Message: "no JSON object found"}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(object)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return domain.AnalysisResult{}, &ValidationError{Message: fmt.Sprintf("malformed JSON: %v", err)}
	}

	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return domain.AnalysisResult{}, &ValidationError{Field: name, Message: "missing"}
		}
	}

	category, ok := fields["category"].(string)
	if !ok {
		return domain.AnalysisResult{}, &ValidationError{Field: "category", Message: "must be a string"}
	}
	urgency, ok := fields["urgency"].(string)
	if !ok {
		return domain.AnalysisResult{}, &ValidationError{Field: "urgency", Message: "must be a string"}
	}
	draft, ok := fields["draft_response"].(string)
	if !ok {
		return domain.AnalysisResult{}, &ValidationError{Field: "draft_response", Message: "must be a string"}
	}
	score, err := coerceScore(fields["sentiment_score"])
	if err != nil {
		return domain.AnalysisResult{}, &ValidationError{Field: "sentiment_score", Message: err.Error()}
	}

	result := domain.AnalysisResult{
		Category:       domain.TicketCategory(category),
		SentimentScore: score,
		Urgency:        domain.TicketUrgency(urgency),
		DraftResponse:  draft,
	}
	if err := result.Validate(); err != nil {
		var fieldErr *domain.FieldError
		if errors.As(err, &fieldErr) {
			return domain.AnalysisResult{}, &ValidationError{Field: fieldErr.Field, Message: fieldErr.Message}
		}
		return domain.AnalysisResult{}, &ValidationError{Message: err.Error()}
	}
	return result, nil
}

// coerceScore accepts JSON numbers, truncating fractions toward zero, and
// integer strings.
func coerceScore(v any) (int, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), nil
		}
		f, err := val.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
			return 0, fmt.Errorf("must be an integer, got %s", val.String())
		}
		return int(math.Trunc(f)), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", val)
		}
		return i, nil
	default:
		return 0, errors.New("must be an integer")
	}
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// firstJSONObject returns the first brace-balanced object in text, skipping
// braces that appear inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
