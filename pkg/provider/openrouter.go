package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tirandagan/llmflow/pkg/log"
)

// DefaultOpenRouterBaseURL is the production API endpoint.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter calls the OpenRouter chat completions API.
type OpenRouter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenRouter creates a client. An empty baseURL uses the production
// endpoint; tests point it at a local server.
func NewOpenRouter(apiKey, baseURL string, timeout time.Duration) *OpenRouter {
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}

	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log.WithModule("openrouter"),
	}
}

// Name returns the provider identifier.
func (o *OpenRouter) Name() string {
	return "openrouter"
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalTokens      int     `json:"total_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs one chat completion.
func (o *OpenRouter) Generate(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (*Response, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrAuth)
	}

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+o.apiKey)
	request.Header.Set("Content-Type", "application/json")

	o.logger.Info("generating completion", "model", model, "messages", len(messages))
	start := time.Now()

	response, err := o.client.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, err)
		}

		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, o.client.Timeout)
		}

		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return nil, o.statusError(response.StatusCode, body)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("invalid response format: %w", err)
	}

	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, fmt.Errorf("provider error: %s", decoded.Error.Message)
	}

	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content: decoded.Choices[0].Message.Content,
		Model:   model,
		Usage: Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
			TotalTokens:  decoded.Usage.TotalTokens,
		},
		CostUSD:    decoded.Usage.Cost,
		DurationMS: time.Since(start).Milliseconds(),
		Provider:   o.Name(),
		Metadata: map[string]any{
			"response_id": decoded.ID,
			"model_used":  decoded.Model,
		},
	}, nil
}

func (o *OpenRouter) statusError(status int, body []byte) error {
	message := string(body)

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil {
		message = decoded.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case status >= 500:
		return fmt.Errorf("provider server error %d: %s", status, message)
	default:
		return fmt.Errorf("provider request rejected with status %d: %s", status, message)
	}
}
