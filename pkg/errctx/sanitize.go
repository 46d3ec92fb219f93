package errctx

import "strings"

const (
	redactedPlaceholder = "[REDACTED]"
	maxStringLength     = 200
)

var sensitiveTokens = []string{
	"key", "token", "secret", "password", "credential", "auth", "bearer", "apikey",
}

// Sanitize returns a copy of the map with credential-like fields redacted and
// oversized strings truncated, recursively through nested maps and slices.
// Applied to inputs and configuration before any external exposure.
func Sanitize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	sanitized := make(map[string]any, len(data))

	for key, value := range data {
		if isSensitiveKey(key) {
			sanitized[key] = redactedPlaceholder

			continue
		}

		sanitized[key] = sanitizeValue(value)
	}

	return sanitized
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case string:
		if len(typed) > maxStringLength {
			return typed[:maxStringLength] + "...[truncated]"
		}

		return typed
	case map[string]any:
		return Sanitize(typed)
	case []any:
		sanitized := make([]any, len(typed))
		for i, item := range typed {
			sanitized[i] = sanitizeValue(item)
		}

		return sanitized
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)

	for _, token := range sensitiveTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}

	return false
}
