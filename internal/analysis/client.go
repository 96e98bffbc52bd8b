package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/domain"
)

// Client calls the Anthropic Messages API and turns the reply into a
// validated AnalysisResult.
type Client struct {
	httpClient *http.Client
	cfg        config.AnalysisConfig
	logger     *zap.Logger
}

// NewClient builds a client. A nil httpClient gets one bounded by cfg.Timeout.
func NewClient(cfg config.AnalysisConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{httpClient: httpClient, cfg: cfg, logger: logger}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Analyze sends one analysis request. Failures are *ProviderError or
// *ValidationError.
func (c *Client) Analyze(ctx context.Context, in Input) (domain.AnalysisResult, error) {
	if c.cfg.APIKey == "" {
		return domain.AnalysisResult{}, &ProviderError{Message: "ANTHROPIC_API_KEY is not configured"}
	}

	body, err := json.Marshal(messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    []message{{Role: "user", Content: BuildPrompt(in)}},
	})
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return domain.AnalysisResult{}, &ProviderError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", c.cfg.APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.AnalysisResult{}, readProviderError(resp)
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if ctx.Err() != nil {
			return domain.AnalysisResult{}, transportError(ctx, err)
		}
		return domain.AnalysisResult{}, &ValidationError{Message: fmt.Sprintf("decode provider envelope: %v", err)}
	}

	text := firstText(decoded)
	if text == "" {
		return domain.AnalysisResult{}, &ValidationError{Message: "response contains no text content"}
	}

	result, err := ParseResult(text)
	if err != nil {
		c.logger.Debug("analysis response rejected", zap.String("response", truncate(text, 200)), zap.Error(err))
		return domain.AnalysisResult{}, err
	}

	c.logger.Debug("analysis completed",
		zap.String("category", string(result.Category)),
		zap.String("urgency", string(result.Urgency)),
	)
	return result, nil
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
}

func firstText(resp messagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text
		}
	}
	return ""
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Timeout: true, Message: "deadline exceeded", Err: err}
	}
	return &ProviderError{Message: err.Error(), Err: err}
}

func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Type: wire.Error.Type, Message: wire.Error.Message}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
