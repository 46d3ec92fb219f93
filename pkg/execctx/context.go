// Package execctx manages the per-run variable context with three namespaces:
// "input" (read-only submission data), "steps" (append-only step outputs), and
// "context" (free scratch variables). Paths such as
// "steps.fetch.output.results[0].name" resolve against those namespaces.
package execctx

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const (
	namespaceInput   = "input"
	namespaceSteps   = "steps"
	namespaceContext = "context"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Context is the mutable per-run variable store. It is owned by a single run
// goroutine and is not safe for concurrent use.
type Context struct {
	input     map[string]any
	steps     map[string]any
	variables map[string]any
	logger    *slog.Logger
}

// New creates a context seeded with the run's input data.
func New(input map[string]any, logger *slog.Logger) *Context {
	if input == nil {
		input = make(map[string]any)
	}

	return &Context{
		input:     input,
		steps:     make(map[string]any),
		variables: make(map[string]any),
		logger:    logger.With("module", "execctx"),
	}
}

// SetStepOutput records a successful step's output under steps.<id>. Map
// outputs are additionally flattened one level for easier path access, and an
// optional output name maps the result (or a text-gen result's content) under
// steps.<id>.<name>.
func (c *Context) SetStepOutput(stepID string, output any, outputVar string) {
	entry := map[string]any{
		"output":  output,
		"success": true,
	}

	if asMap, ok := output.(map[string]any); ok {
		for key, value := range asMap {
			if key == "output" || key == "success" {
				continue
			}

			entry[key] = value
		}
	}

	if outputVar != "" {
		if asMap, ok := output.(map[string]any); ok {
			if content, has := asMap["content"]; has {
				entry[outputVar] = content
			} else {
				entry[outputVar] = output
			}
		} else {
			entry[outputVar] = output
		}
	}

	c.steps[stepID] = entry
}

// SetStepError records a failed step without an output.
func (c *Context) SetStepError(stepID, message string) {
	c.steps[stepID] = map[string]any{
		"output":  nil,
		"success": false,
		"error":   message,
	}
}

// StepSucceeded reports whether the step ran and succeeded.
func (c *Context) StepSucceeded(stepID string) bool {
	entry, ok := c.steps[stepID].(map[string]any)
	if !ok {
		return false
	}

	success, _ := entry["success"].(bool)

	return success
}

// SetVariable stores a scratch variable in the context namespace.
func (c *Context) SetVariable(key string, value any) {
	c.variables[key] = value
}

// Resolve returns the value at a namespaced path such as "input.location.city".
func (c *Context) Resolve(path string) (any, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	namespace, rest, _ := strings.Cut(path, ".")

	var root map[string]any

	switch namespace {
	case namespaceInput:
		root = c.input
	case namespaceSteps:
		root = c.steps
	case namespaceContext:
		root = c.variables
	default:
		return nil, &PathError{Path: path, Segment: namespace, Reason: "unknown namespace"}
	}

	if rest == "" {
		return root, nil
	}

	tokens, err := ParsePath(rest)
	if err != nil {
		return nil, err
	}

	return resolveTokens(path, root, tokens)
}

// ResolveString resolves every ${path} placeholder in text. A string that is
// exactly one placeholder yields the resolved value with its type preserved;
// otherwise placeholders are stringified in place. Unresolvable placeholders
// are logged and left literal, so a partially-bound template degrades instead
// of failing the step.
func (c *Context) ResolveString(text string) any {
	matches := placeholderPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(text) {
		value, err := c.Resolve(text[matches[0][2]:matches[0][3]])
		if err != nil {
			c.logger.Warn("failed to resolve placeholder", "placeholder", text, "error", err)

			return text
		}

		return value
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(placeholder string) string {
		path := placeholder[2 : len(placeholder)-1]

		value, err := c.Resolve(path)
		if err != nil {
			c.logger.Warn("failed to resolve placeholder", "placeholder", placeholder, "error", err)

			return placeholder
		}

		return fmt.Sprintf("%v", value)
	})
}

// ResolveAny recursively resolves placeholders through strings, maps, and
// slices, leaving other values untouched.
func (c *Context) ResolveAny(value any) any {
	switch typed := value.(type) {
	case string:
		return c.ResolveString(typed)
	case map[string]any:
		resolved := make(map[string]any, len(typed))
		for key, nested := range typed {
			resolved[key] = c.ResolveAny(nested)
		}

		return resolved
	case []any:
		resolved := make([]any, len(typed))
		for i, nested := range typed {
			resolved[i] = c.ResolveAny(nested)
		}

		return resolved
	default:
		return value
	}
}

// Snapshot serializes the three namespaces for progress persistence.
func (c *Context) Snapshot() map[string]any {
	return map[string]any{
		"input":   c.input,
		"steps":   c.steps,
		"context": c.variables,
	}
}

// FromSnapshot restores a context previously produced by Snapshot.
func FromSnapshot(data map[string]any, logger *slog.Logger) *Context {
	input, _ := data["input"].(map[string]any)
	ctx := New(input, logger)

	if steps, ok := data["steps"].(map[string]any); ok {
		ctx.steps = steps
	}

	if variables, ok := data["context"].(map[string]any); ok {
		ctx.variables = variables
	}

	return ctx
}
