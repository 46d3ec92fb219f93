// Package errctx provides the cross-cutting error taxonomy: classification of
// failures into user/config/system/external categories, retryability analysis,
// remediation suggestions, and sanitization of data that crosses the process
// boundary.
package errctx

import (
	"time"
)

// Category classifies a failure for handling and messaging.
type Category string

const (
	CategoryUser     Category = "USER_ERROR"     // Invalid user input, never retried
	CategoryConfig   Category = "CONFIG_ERROR"   // Missing or invalid configuration, never retried
	CategorySystem   Category = "SYSTEM_ERROR"   // Internal failure, never retried
	CategoryExternal Category = "EXTERNAL_ERROR" // External service failure, retryable per heuristics
)

// Context is the structured error context attached to run failures. The stack
// trace never crosses the process boundary; ToMap omits it unconditionally and
// only process-local logs may carry it.
type Context struct {
	Kind        string
	Category    Category
	Message     string
	StepID      string
	Service     string
	Operation   string
	Inputs      map[string]any
	Config      map[string]any
	StackTrace  string
	Retryable   bool
	RetryAfter  time.Duration
	Suggestions []string
	Timestamp   time.Time
}

// New builds a context for a failure, sanitizing inputs and config eagerly so
// no caller can leak the raw values later.
func New(kind string, category Category, message string) *Context {
	return &Context{
		Kind:      kind,
		Category:  category,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WithStep attaches the failing step id.
func (c *Context) WithStep(stepID string) *Context {
	c.StepID = stepID

	return c
}

// WithService attaches the external service and operation.
func (c *Context) WithService(service, operation string) *Context {
	c.Service = service
	c.Operation = operation

	return c
}

// WithInputs attaches a sanitized snapshot of the inputs.
func (c *Context) WithInputs(inputs map[string]any) *Context {
	c.Inputs = Sanitize(inputs)

	return c
}

// WithConfig attaches a sanitized snapshot of the configuration.
func (c *Context) WithConfig(config map[string]any) *Context {
	c.Config = Sanitize(config)

	return c
}

// WithRetry marks the failure retryable with an optional retry-after hint.
func (c *Context) WithRetry(retryAfter time.Duration) *Context {
	c.Retryable = true
	c.RetryAfter = retryAfter

	return c
}

// WithSuggestions attaches remediation hints.
func (c *Context) WithSuggestions(suggestions ...string) *Context {
	c.Suggestions = append(c.Suggestions, suggestions...)

	return c
}

// ToMap serializes the context for persistence and webhook payloads. The
// stack trace is omitted regardless of arguments; it exists only for
// process-local logging.
func (c *Context) ToMap() map[string]any {
	out := map[string]any{
		"type":      c.Kind,
		"category":  string(c.Category),
		"message":   c.Message,
		"timestamp": c.Timestamp.Format(time.RFC3339),
		"retryable": c.Retryable,
	}

	if c.StepID != "" {
		out["step_id"] = c.StepID
	}

	details := map[string]any{}

	if c.Service != "" {
		details["service"] = c.Service
	}

	if c.Operation != "" {
		details["operation"] = c.Operation
	}

	if c.Inputs != nil {
		details["inputs"] = c.Inputs
	}

	if c.Config != nil {
		details["config"] = c.Config
	}

	if c.RetryAfter > 0 {
		details["retry_after"] = int(c.RetryAfter.Seconds())
	}

	if len(c.Suggestions) > 0 {
		details["suggestions"] = c.Suggestions
	}

	if len(details) > 0 {
		out["details"] = details
	}

	return out
}
