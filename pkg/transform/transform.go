// Package transform provides the stateless data-shaping operations available
// to workflow transform steps: field extraction, filtering, mapping, joining,
// sorting, deduplication, regex extraction, structured-text parsing, template
// rendering, and object merging. Every operation honors one of three failure
// policies.
package transform

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tirandagan/llmflow/pkg/log"
)

// FailurePolicy controls what a failed transformation yields.
type FailurePolicy string

const (
	// PolicyFail propagates the error, failing the step.
	PolicyFail FailurePolicy = "fail"
	// PolicyContinue logs the error and yields a nil result.
	PolicyContinue FailurePolicy = "continue"
	// PolicyDefault logs the error and yields the configured default value.
	PolicyDefault FailurePolicy = "default"
)

var (
	// ErrUnknownOperation is returned for an operation name not in the registry.
	ErrUnknownOperation = errors.New("unknown transformation")
	// ErrInvalidCondition is returned when a filter condition has no recognized operator.
	ErrInvalidCondition = errors.New("invalid filter condition")
)

// Options carries the failure policy and default value into an operation so
// per-element failures can honor them without aborting the whole batch.
type Options struct {
	Policy  FailurePolicy
	Default any
	Logger  *slog.Logger
}

// Operation is a single stateless transformation over arbitrary JSON-shaped
// data. Operations never mutate their input.
type Operation func(input any, config map[string]any, opts Options) (any, error)

// Registry maps operation names to their implementations. Construct one per
// composition root; it is immutable after construction and safe for
// concurrent use.
type Registry struct {
	operations map[string]Operation
	logger     *slog.Logger
}

// NewRegistry builds a registry with the ten built-in operations.
func NewRegistry() *Registry {
	r := &Registry{
		operations: make(map[string]Operation),
		logger:     log.WithModule("transform"),
	}

	r.operations["extract_fields"] = extractFields
	r.operations["filter"] = filterElements
	r.operations["map"] = mapElements
	r.operations["join"] = joinElements
	r.operations["sort"] = sortElements
	r.operations["unique"] = uniqueElements
	r.operations["regex_extract"] = regexExtract
	r.operations["markdown_to_json"] = markdownToJSON
	r.operations["template"] = renderTemplate
	r.operations["merge"] = mergeSources

	return r
}

// Has reports whether the operation name is registered. Workflow loading uses
// it to reject unknown operations before any run starts.
func (r *Registry) Has(name string) bool {
	_, ok := r.operations[name]

	return ok
}

// Execute runs a named operation and applies the failure policy to its
// outcome: fail propagates, continue yields nil, default yields the
// configured default.
func (r *Registry) Execute(name string, input any, config map[string]any, policy FailurePolicy, defaultValue any) (any, error) {
	operation, ok := r.operations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}

	opts := Options{Policy: policy, Default: defaultValue, Logger: r.logger}

	output, err := operation(input, config, opts)
	if err == nil {
		return output, nil
	}

	switch policy {
	case PolicyContinue:
		r.logger.Warn("transformation failed, continuing with nil", "operation", name, "error", err)

		return nil, nil
	case PolicyDefault:
		r.logger.Warn("transformation failed, using default value", "operation", name, "error", err)

		return defaultValue, nil
	default:
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
}

func stringOption(config map[string]any, key string) string {
	value, _ := config[key].(string)

	return value
}

func boolOption(config map[string]any, key string) bool {
	value, _ := config[key].(bool)

	return value
}
