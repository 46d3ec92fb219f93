package errctx

// Error is a failure carrying its structured context through the execution
// layers. The deepest context wins: wrapping code must not replace an
// existing *Error with a fresh one.
type Error struct {
	Context *Context
	cause   error
}

// NewError wraps a cause with a structured context.
func NewError(context *Context, cause error) *Error {
	return &Error{Context: context, cause: cause}
}

func (e *Error) Error() string {
	return e.Context.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// UserError builds a user-input failure (never retried).
func UserError(message string) *Error {
	return NewError(New("UserInputError", CategoryUser, message), nil)
}

// ConfigError builds a configuration failure (never retried, carries hints).
func ConfigError(message string, suggestions ...string) *Error {
	return NewError(New("ConfigurationError", CategoryConfig, message).WithSuggestions(suggestions...), nil)
}

// ExternalError builds an external-service failure classified from its cause.
func ExternalError(message string, cause error) *Error {
	context := New("ExternalAPIError", CategoryExternal, message)
	if cause != nil && IsRetryable(cause) {
		context.WithRetry(RetryAfter(cause))
	}

	return NewError(context, cause)
}

// SystemError builds an internal failure (never retried, fully logged locally).
func SystemError(message string, cause error) *Error {
	return NewError(New("SystemError", CategorySystem, message), cause)
}
