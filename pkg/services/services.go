// Package services provides the pluggable external-API adapter layer:
// a registry of named services and an invoker that wraps every call with the
// response cache and the distributed rate limiter.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
)

// Service is one external API adapter.
type Service interface {
	Name() string
	Operations() []string
	Call(ctx context.Context, operation string, params map[string]any) (map[string]any, error)
}

// Response is the uniform external-service call result handed to steps.
type Response struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Cached   bool           `json:"cached"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToMap serializes the response for step output storage.
func (r *Response) ToMap() map[string]any {
	out := map[string]any{
		"success": r.Success,
		"cached":  r.Cached,
	}

	if r.Data != nil {
		out["data"] = r.Data
	}

	if r.Error != "" {
		out["error"] = r.Error
	}

	if r.Metadata != nil {
		out["metadata"] = r.Metadata
	}

	return out
}

var (
	// ErrUnknownService is returned when no adapter is registered under the name.
	ErrUnknownService = errors.New("unknown external service")
	// ErrDuplicateService is returned when a name is registered twice.
	ErrDuplicateService = errors.New("service already registered")
	// ErrUnsupportedOperation is returned for an operation the adapter does not implement.
	ErrUnsupportedOperation = errors.New("unsupported service operation")
	// ErrMissingParameter is returned when a required call parameter is absent.
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrAuth is returned when the upstream rejects the API key.
	ErrAuth = errors.New("service authentication failed")
	// ErrQuota is returned when the upstream reports an exhausted quota.
	ErrQuota = errors.New("service quota exceeded")
)

// OperationError names the unsupported operation and what the adapter does
// support.
type OperationError struct {
	Service   string
	Operation string
	Supported []string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q for service %q (supported: %v)", e.Operation, e.Service, e.Supported)
}

func (e *OperationError) Unwrap() error {
	return ErrUnsupportedOperation
}

func supports(service Service, operation string) bool {
	return slices.Contains(service.Operations(), operation)
}

// Registry maps service names to adapters. Registration happens at the
// composition root before any run starts; lookups are read-only afterwards.
type Registry struct {
	services map[string]Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds an adapter under its name.
func (r *Registry) Register(service Service) error {
	name := service.Name()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateService, name)
	}

	r.services[name] = service

	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Service, error) {
	service, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownService, name, r.Names())
	}

	return service, nil
}

// Names lists the registered service names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}

	return names
}

// GetJSON performs a GET request and decodes the JSON body. Adapters share it
// so HTTP status mapping stays in one place: 401/403 become ErrAuth, 429
// becomes ErrQuota, 5xx a server error.
func GetJSON(ctx context.Context, client *http.Client, endpoint string, query url.Values) (map[string]any, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", "llmflow/1.0")

	response, err := client.Do(request)
	if err != nil {
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
		return nil, statusError(response.StatusCode, string(body))
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid response body: %w", err)
	}

	return data, nil
}

func statusError(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, body)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrQuota, body)
	case status >= 500:
		return fmt.Errorf("server error (%d): %s", status, body)
	default:
		return fmt.Errorf("HTTP %d: %s", status, body)
	}
}
