package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.AnalysisConfig{
		APIKey:      "test-key",
		BaseURL:     url,
		APIVersion:  "2023-06-01",
		Model:       "test-model",
		MaxTokens:   256,
		Temperature: 0.2,
		Timeout:     5 * time.Second,
	}, nil, zap.NewNop())
}

func TestClientAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Contains(t, req.Messages[0].Content, "Title: Double charge")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "```json\n" + validBody + "\n```"}},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Analyze(context.Background(), Input{
		Title:       "Double charge",
		Description: "I was billed twice this month.",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SentimentScore)
}

func TestClientProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), Input{Title: "t", Description: "d"})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusServiceUnavailable, providerErr.StatusCode)
	assert.Equal(t, "overloaded_error", providerErr.Type)
	assert.True(t, IsRetryable(err))
}

func TestClientDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Analyze(ctx, Input{Title: "t", Description: "d"})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.True(t, providerErr.Timeout)
}

func TestClientMalformedReplyIsValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "Sorry, I can't do that."}},
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), Input{Title: "t", Description: "d"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestClientWithoutKey(t *testing.T) {
	client := NewClient(config.AnalysisConfig{}, nil, zap.NewNop())
	_, err := client.Analyze(context.Background(), Input{Title: "t", Description: "d"})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
}
