package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "anthropic/claude-3.5-sonnet", payload["model"])
		assert.Equal(t, float64(1000), payload["max_tokens"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "gen-123",
			"model": "anthropic/claude-3.5-sonnet",
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "Hello from the model."}},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 6,
				"total_tokens":      18,
				"cost":              0.00021,
			},
		})
	}))
	defer server.Close()

	client := NewOpenRouter("test-key", server.URL, 5*time.Second)

	response, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, "anthropic/claude-3.5-sonnet", 0.7, 1000)
	require.NoError(t, err)

	assert.Equal(t, "Hello from the model.", response.Content)
	assert.Equal(t, 12, response.Usage.InputTokens)
	assert.Equal(t, 18, response.Usage.TotalTokens)
	assert.Equal(t, 0.00021, response.CostUSD)
	assert.Equal(t, "openrouter", response.Provider)
	assert.Equal(t, "gen-123", response.Metadata["response_id"])
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "nope"}})
			}))
			defer server.Close()

			client := NewOpenRouter("test-key", server.URL, 5*time.Second)

			_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, "openai/gpt-4o-mini", 0.7, 100)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestGenerateMissingKey(t *testing.T) {
	client := NewOpenRouter("", "", time.Second)

	_, err := client.Generate(context.Background(), nil, "openai/gpt-4o-mini", 0.7, 100)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewOpenRouter("test-key", server.URL, 50*time.Millisecond)

	_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, "openai/gpt-4o-mini", 0.7, 100)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := NewOpenRouter("test-key", server.URL, 5*time.Second)

	_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, "openai/gpt-4o-mini", 0.7, 100)

	assert.ErrorIs(t, err, ErrEmptyResponse)
}
