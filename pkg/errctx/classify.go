package errctx

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	configKeywords = []string{"api key", "missing key", "invalid key", "not configured", "no api key"}
	userKeywords   = []string{"invalid input", "validation failed", "required field", "bad request", "invalid parameter"}

	retryableKeywords = []string{
		"timeout", "timed out", "connection", "temporary", "unavailable",
		"rate limit", "too many requests", "server error", "503", "502", "504",
	}
	nonRetryableKeywords = []string{
		"invalid key", "authentication", "forbidden", "not found",
		"bad request", "validation", "400", "401", "403", "404",
	}

	statusPattern     = regexp.MustCompile(`\b([45]\d{2})\b`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)
)

// Classify maps an error to a taxonomy category using message heuristics.
// Errors already carrying a Context keep their category.
func Classify(err error) Category {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Context.Category
	}

	message := strings.ToLower(err.Error())

	if containsAny(message, configKeywords) {
		return CategoryConfig
	}

	if containsAny(message, userKeywords) {
		return CategoryUser
	}

	if containsAny(message, []string{"timeout", "timed out", "connection refused", "connection failed", "network", "unreachable"}) {
		return CategoryExternal
	}

	return CategorySystem
}

// IsRetryable reports whether the failure is likely transient. Explicit
// non-retryable signals (auth, validation, 4xx) take precedence over
// retryable ones.
func IsRetryable(err error) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Context.Retryable
	}

	message := strings.ToLower(err.Error())

	if containsAny(message, nonRetryableKeywords) {
		return false
	}

	if containsAny(message, retryableKeywords) {
		return true
	}

	if match := statusPattern.FindStringSubmatch(message); match != nil {
		status, _ := strconv.Atoi(match[1])

		return status >= 500
	}

	return false
}

// RetryAfter extracts a retry-after hint from the error, falling back to
// conventional defaults for rate limits and timeouts. Zero means no hint.
func RetryAfter(err error) time.Duration {
	var typed *Error
	if errors.As(err, &typed) && typed.Context.RetryAfter > 0 {
		return typed.Context.RetryAfter
	}

	message := err.Error()

	if match := retryAfterPattern.FindStringSubmatch(message); match != nil {
		seconds, _ := strconv.Atoi(match[1])

		return time.Duration(seconds) * time.Second
	}

	lower := strings.ToLower(message)

	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") {
		return 60 * time.Second
	}

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return 30 * time.Second
	}

	return 0
}

// Suggestions returns remediation hints keyed by the error signature and,
// where known, the service involved.
func Suggestions(err error, service, operation string) []string {
	message := strings.ToLower(err.Error())
	hints := make([]string, 0, 4)

	if containsAny(message, []string{"api key", "authentication", "unauthorized", "401", "403"}) {
		name := "API"
		if service != "" {
			name = strings.ToUpper(service)
		}

		hints = append(hints,
			"Verify the "+name+" key is set in the environment",
			"Check API key permissions and quota limits",
			"Ensure the key has no extra spaces or quotes",
		)
	}

	if strings.Contains(message, "rate limit") || strings.Contains(message, "429") {
		hints = append(hints,
			"Wait for the rate limit window to reset before retrying",
			"Review rate limit headers for reset timing",
		)
	}

	if strings.Contains(message, "timeout") || strings.Contains(message, "timed out") {
		hints = append(hints,
			"Retry the request after a short delay",
			"Increase the request timeout configuration",
			"Check network connectivity to the external service",
		)
	}

	if strings.Contains(message, "connection") {
		hints = append(hints,
			"Verify network connectivity to the service endpoint",
			"Ensure the service endpoint URL is correct",
		)
	}

	if strings.Contains(message, "validation") || strings.Contains(message, "invalid") {
		hints = append(hints,
			"Review input parameters for correct format and required fields",
			"Check the service documentation for parameter requirements",
		)
	}

	if containsAny(message, []string{"500", "502", "503", "504", "server error"}) {
		hints = append(hints,
			"Retry the request after a short delay",
			"Check the external service status page",
		)
	}

	switch service {
	case "google_places":
		hints = append(hints,
			"Verify the Places API is enabled in the Google Cloud console",
			"Check Google Cloud project quota and billing status",
		)
	case "weatherapi":
		hints = append(hints,
			"Check the WeatherAPI subscription status and quota",
			"Verify location parameters are valid coordinates",
		)
	}

	_ = operation

	return hints
}

// FromError extracts the deepest structured context from err, building one
// via classification when none is attached.
func FromError(err error, stepID string) *Context {
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Context.StepID == "" {
			typed.Context.StepID = stepID
		}

		return typed.Context
	}

	category := Classify(err)
	context := New(kindFor(category), category, err.Error()).WithStep(stepID)
	context.Suggestions = Suggestions(err, "", "")

	if category == CategoryExternal && IsRetryable(err) {
		context.WithRetry(RetryAfter(err))
	}

	return context
}

func kindFor(category Category) string {
	switch category {
	case CategoryUser:
		return "UserInputError"
	case CategoryConfig:
		return "ConfigurationError"
	case CategoryExternal:
		return "ExternalAPIError"
	default:
		return "SystemError"
	}
}

func containsAny(message string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}

	return false
}
