// Package models defines the core domain models for declarative LLM workflow execution.
package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrorMode is the per-step failure policy.
type ErrorMode string

const (
	ErrorModeFail     ErrorMode = "fail"     // Abort the run, propagate the error
	ErrorModeContinue ErrorMode = "continue" // Record the failure and proceed
	ErrorModeRetry    ErrorMode = "retry"    // Reserved, rejected at load time
)

// Workflow is an immutable, load-once workflow definition.
type Workflow struct {
	Name           string          `json:"name"            validate:"required,min=3"`
	Version        string          `json:"version"         validate:"required"`
	Description    string          `json:"description,omitempty"`
	Steps          []*Step         `json:"steps"           validate:"required,min=1,dive"`
	ErrorMode      ErrorMode       `json:"error_mode,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	Inputs         []WorkflowInput `json:"inputs,omitempty" validate:"dive"`
}

// WorkflowInput declares an input parameter callers must (or may) provide.
type WorkflowInput struct {
	Name        string `json:"name"        validate:"required,max=50"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

const defaultTimeoutSeconds = 300

var (
	// ErrDuplicateStepID is returned when a workflow declares two steps with the same id.
	ErrDuplicateStepID = errors.New("duplicate step id")
	// ErrRetryModeReserved is returned when a step declares the reserved "retry" error mode.
	ErrRetryModeReserved = errors.New(`error mode "retry" is reserved and not supported`)
)

var validate = validator.New()

// Validate checks structural validity of the definition: required fields,
// unique step ids, supported error modes, and per-kind step configuration.
func (w *Workflow) Validate() error {
	err := validate.Struct(w)
	if err != nil {
		return fmt.Errorf("workflow %q failed validation: %w", w.Name, err)
	}

	if w.ErrorMode == ErrorModeRetry {
		return fmt.Errorf("workflow %q: %w", w.Name, ErrRetryModeReserved)
	}

	seen := make(map[string]struct{}, len(w.Steps))

	for _, step := range w.Steps {
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("workflow %q: step %q: %w", w.Name, step.ID, ErrDuplicateStepID)
		}

		seen[step.ID] = struct{}{}

		err := step.Validate()
		if err != nil {
			return fmt.Errorf("workflow %q: %w", w.Name, err)
		}
	}

	return nil
}

// Timeout returns the configured total timeout in seconds, or the default.
func (w *Workflow) Timeout() int {
	if w.TimeoutSeconds > 0 {
		return w.TimeoutSeconds
	}

	return defaultTimeoutSeconds
}

// DefaultErrorMode returns the workflow-level error mode applied to steps
// that do not declare their own.
func (w *Workflow) DefaultErrorMode() ErrorMode {
	if w.ErrorMode != "" {
		return w.ErrorMode
	}

	return ErrorModeFail
}
