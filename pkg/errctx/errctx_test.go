package errctx

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"timeout is external", errors.New("request timed out after 30s"), CategoryExternal},
		{"connection refused is external", errors.New("connection refused"), CategoryExternal},
		{"missing api key is config", errors.New("WEATHERAPI api key not configured"), CategoryConfig},
		{"validation is user", errors.New("validation failed: required field 'city'"), CategoryUser},
		{"unknown is system", errors.New("nil pointer dereference"), CategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassifyKeepsAttachedCategory(t *testing.T) {
	err := UserError("invalid parameter")
	wrapped := fmt.Errorf("step failed: %w", err)

	assert.Equal(t, CategoryUser, Classify(wrapped))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"timeout", errors.New("request timed out"), true},
		{"rate limit", errors.New("429 too many requests"), true},
		{"server error", errors.New("503 service unavailable"), true},
		{"authentication", errors.New("401 authentication failed"), false},
		{"not found", errors.New("place not found"), false},
		{"bare 500 status", errors.New("upstream returned 500"), true},
		{"bare 404 status", errors.New("upstream returned 404"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryableNonRetryablePrecedence(t *testing.T) {
	// A non-retryable signal wins even when a retryable one is present.
	err := errors.New("authentication failed: connection to auth server timed out")

	assert.False(t, IsRetryable(err))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 120*time.Second, RetryAfter(errors.New("rate limited, Retry-After: 120")))
	assert.Equal(t, 60*time.Second, RetryAfter(errors.New("429 rate limit exceeded")))
	assert.Equal(t, 30*time.Second, RetryAfter(errors.New("request timed out")))
	assert.Equal(t, time.Duration(0), RetryAfter(errors.New("not found")))
}

func TestFromErrorTimeout(t *testing.T) {
	context := FromError(errors.New("request timed out"), "fetch_weather")

	require.NotNil(t, context)
	assert.Equal(t, CategoryExternal, context.Category)
	assert.Equal(t, "fetch_weather", context.StepID)
	assert.True(t, context.Retryable)
	assert.Equal(t, 30*time.Second, context.RetryAfter)
	assert.NotEmpty(t, context.Suggestions)
}

func TestFromErrorValidation(t *testing.T) {
	context := FromError(errors.New("validation failed: invalid parameter 'radius'"), "search")

	require.NotNil(t, context)
	assert.Equal(t, CategoryUser, context.Category)
	assert.False(t, context.Retryable)
	assert.Zero(t, context.RetryAfter)
}

func TestFromErrorPreservesDeepestContext(t *testing.T) {
	inner := ExternalError("weatherapi request failed", errors.New("503 service unavailable"))
	inner.Context.WithService("weatherapi", "current")
	wrapped := fmt.Errorf("executing step: %w", inner)

	context := FromError(wrapped, "get_weather")

	assert.Equal(t, "weatherapi", context.Service)
	assert.Equal(t, CategoryExternal, context.Category)
	assert.Equal(t, "get_weather", context.StepID)
}

func TestSanitize(t *testing.T) {
	inputs := map[string]any{
		"api_key": "sk-secret-value",
		"city":    "Seattle",
	}

	sanitized := Sanitize(inputs)

	assert.Equal(t, "[REDACTED]", sanitized["api_key"])
	assert.Equal(t, "Seattle", sanitized["city"])
	assert.Equal(t, "sk-secret-value", inputs["api_key"], "original map must not be mutated")
}

func TestSanitizeNested(t *testing.T) {
	inputs := map[string]any{
		"params": map[string]any{
			"authorization": "Bearer xyz",
			"location":      "47.6,-122.3",
		},
		"headers": []any{
			map[string]any{"x-api-token": "abc"},
		},
	}

	sanitized := Sanitize(inputs)

	params, ok := sanitized["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", params["authorization"])
	assert.Equal(t, "47.6,-122.3", params["location"])

	headers, ok := sanitized["headers"].([]any)
	require.True(t, ok)
	first, ok := headers[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", first["x-api-token"])
}

func TestSanitizeTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 500)

	sanitized := Sanitize(map[string]any{"body": long})

	value, ok := sanitized["body"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(value, "...[truncated]"))
	assert.Less(t, len(value), len(long))
}

func TestContextToMapOmitsStackTrace(t *testing.T) {
	context := New("SystemError", CategorySystem, "boom")
	context.StackTrace = "goroutine 1 [running]..."
	context.WithStep("s1").WithService("google_places", "text_search")

	out := context.ToMap()

	_, present := out["stack_trace"]
	assert.False(t, present)

	details, ok := out["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "google_places", details["service"])
	assert.Equal(t, "SystemError", out["type"])
	assert.Equal(t, "SYSTEM_ERROR", out["category"])
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := ExternalError("places request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Context.Retryable)
}
