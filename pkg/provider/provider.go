// Package provider defines the generative-text provider contract and its
// OpenRouter implementation. Every provider returns the same response shape
// so executors and cost accounting never branch on the backend.
package provider

import (
	"context"
	"errors"
)

// Message is one chat turn in the provider request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries token counts from a generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the uniform generation result.
type Response struct {
	Content    string         `json:"content"`
	Model      string         `json:"model"`
	Usage      Usage          `json:"usage"`
	CostUSD    float64        `json:"cost_usd"`
	DurationMS int64          `json:"duration_ms"`
	Provider   string         `json:"provider"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	// ErrAuth indicates an invalid or missing API key.
	ErrAuth = errors.New("provider authentication failed")
	// ErrTimeout indicates the provider did not answer in time.
	ErrTimeout = errors.New("provider request timed out")
	// ErrRateLimited indicates the provider rejected the call for quota reasons.
	ErrRateLimited = errors.New("provider rate limit exceeded")
	// ErrEmptyResponse indicates a well-formed reply without usable content.
	ErrEmptyResponse = errors.New("provider returned no content")
)

// Provider generates text completions.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (*Response, error)
}
