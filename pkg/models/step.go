package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StepKind discriminates the closed set of step variants.
type StepKind string

const (
	StepKindTextGen         StepKind = "llm"
	StepKindTransform       StepKind = "transform"
	StepKindExternalService StepKind = "external_service"
)

var (
	// ErrUnknownStepKind is returned for a step kind outside the closed set.
	ErrUnknownStepKind = errors.New("unknown step kind")
	// ErrStepConfigMissing is returned when a step carries no configuration for its kind.
	ErrStepConfigMissing = errors.New("step configuration missing")
)

// Step is one unit of work in a workflow. Exactly one of the kind configs is
// set, matching Kind; dispatch over the union is exhaustive in the engine.
type Step struct {
	ID        string    `json:"id"   validate:"required,max=50"`
	Kind      StepKind  `json:"type" validate:"required"`
	Name      string    `json:"display_name,omitempty"`
	ErrorMode ErrorMode `json:"error_mode,omitempty"`
	OutputVar string    `json:"output_var,omitempty"`

	TextGen   *TextGenConfig         `json:"-"`
	Transform *TransformConfig       `json:"-"`
	Service   *ExternalServiceConfig `json:"-"`
}

// TextGenConfig configures a generative-text provider call.
type TextGenConfig struct {
	Model          string         `json:"model"`
	PromptTemplate string         `json:"prompt_template,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Variables      map[string]any `json:"variables,omitempty"`
}

// TransformConfig configures a synchronous data transformation.
type TransformConfig struct {
	Operation string         `json:"operation"`
	Input     string         `json:"input,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	Default   any            `json:"default,omitempty"`
}

// ExternalServiceConfig configures an external-API lookup.
type ExternalServiceConfig struct {
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"config,omitempty"`
	CacheTTL  int            `json:"cache_ttl,omitempty"`
}

// stepEnvelope mirrors the on-disk step shape: common fields plus a raw
// config blob decoded per kind.
type stepEnvelope struct {
	ID        string          `json:"id"`
	Kind      StepKind        `json:"type"`
	Name      string          `json:"display_name,omitempty"`
	ErrorMode ErrorMode       `json:"error_mode,omitempty"`
	OutputVar string          `json:"output_var,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON decodes the kind-specific configuration into the matching
// union variant.
func (s *Step) UnmarshalJSON(data []byte) error {
	var envelope stepEnvelope

	err := json.Unmarshal(data, &envelope)
	if err != nil {
		return err
	}

	s.ID = envelope.ID
	s.Kind = envelope.Kind
	s.Name = envelope.Name
	s.ErrorMode = envelope.ErrorMode
	s.OutputVar = envelope.OutputVar

	if len(envelope.Config) == 0 {
		return nil
	}

	switch envelope.Kind {
	case StepKindTextGen:
		s.TextGen = &TextGenConfig{}

		return json.Unmarshal(envelope.Config, s.TextGen)
	case StepKindTransform:
		s.Transform = &TransformConfig{}

		return json.Unmarshal(envelope.Config, s.Transform)
	case StepKindExternalService:
		s.Service = &ExternalServiceConfig{}

		return json.Unmarshal(envelope.Config, s.Service)
	default:
		return fmt.Errorf("step %q: %w: %q", envelope.ID, ErrUnknownStepKind, envelope.Kind)
	}
}

// MarshalJSON re-encodes the union variant under the "config" key.
func (s *Step) MarshalJSON() ([]byte, error) {
	envelope := stepEnvelope{
		ID:        s.ID,
		Kind:      s.Kind,
		Name:      s.Name,
		ErrorMode: s.ErrorMode,
		OutputVar: s.OutputVar,
	}

	var (
		config any
		err    error
	)

	switch s.Kind {
	case StepKindTextGen:
		config = s.TextGen
	case StepKindTransform:
		config = s.Transform
	case StepKindExternalService:
		config = s.Service
	default:
		return nil, fmt.Errorf("step %q: %w: %q", s.ID, ErrUnknownStepKind, s.Kind)
	}

	if config != nil {
		envelope.Config, err = json.Marshal(config)
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(envelope)
}

// Validate checks the step's error mode and that the union variant matching
// its kind is present and minimally complete.
func (s *Step) Validate() error {
	if s.ErrorMode == ErrorModeRetry {
		return fmt.Errorf("step %q: %w", s.ID, ErrRetryModeReserved)
	}

	if s.ErrorMode != "" && s.ErrorMode != ErrorModeFail && s.ErrorMode != ErrorModeContinue {
		return fmt.Errorf("step %q: unsupported error mode %q", s.ID, s.ErrorMode)
	}

	switch s.Kind {
	case StepKindTextGen:
		if s.TextGen == nil {
			return fmt.Errorf("step %q: %w", s.ID, ErrStepConfigMissing)
		}

		if s.TextGen.Prompt == "" && s.TextGen.PromptTemplate == "" {
			return fmt.Errorf("step %q: text-gen step requires a prompt or prompt_template", s.ID)
		}
	case StepKindTransform:
		if s.Transform == nil || s.Transform.Operation == "" {
			return fmt.Errorf("step %q: transform step requires an operation", s.ID)
		}
	case StepKindExternalService:
		if s.Service == nil || s.Service.Service == "" || s.Service.Operation == "" {
			return fmt.Errorf("step %q: external-service step requires service and operation", s.ID)
		}
	default:
		return fmt.Errorf("step %q: %w: %q", s.ID, ErrUnknownStepKind, s.Kind)
	}

	return nil
}

// EffectiveErrorMode resolves the step's error mode against the workflow default.
func (s *Step) EffectiveErrorMode(workflowDefault ErrorMode) ErrorMode {
	if s.ErrorMode != "" {
		return s.ErrorMode
	}

	return workflowDefault
}
