package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Name:    "summarize",
		Version: "1.0.0",
		Steps: []*Step{
			{
				ID:   "gen",
				Kind: StepKindTextGen,
				TextGen: &TextGenConfig{
					Model:  "openai/gpt-4o-mini",
					Prompt: "Summarize: ${input.text}",
				},
			},
		},
	}
}

func TestWorkflowValidate(t *testing.T) {
	require.NoError(t, validWorkflow().Validate())
}

func TestWorkflowValidateRejectsShortName(t *testing.T) {
	workflow := validWorkflow()
	workflow.Name = "ab"

	require.Error(t, workflow.Validate())
}

func TestWorkflowValidateRejectsRetryMode(t *testing.T) {
	workflow := validWorkflow()
	workflow.ErrorMode = ErrorModeRetry

	require.ErrorIs(t, workflow.Validate(), ErrRetryModeReserved)

	workflow = validWorkflow()
	workflow.Steps[0].ErrorMode = ErrorModeRetry

	require.ErrorIs(t, workflow.Validate(), ErrRetryModeReserved)
}

func TestWorkflowValidateRejectsDuplicateStepIDs(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps = append(workflow.Steps, &Step{
		ID:        "gen",
		Kind:      StepKindTransform,
		Transform: &TransformConfig{Operation: "uppercase"},
	})

	require.ErrorIs(t, workflow.Validate(), ErrDuplicateStepID)
}

func TestWorkflowValidateRejectsStepWithoutConfig(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps[0].TextGen = nil

	require.ErrorIs(t, workflow.Validate(), ErrStepConfigMissing)
}

func TestWorkflowDefaults(t *testing.T) {
	workflow := validWorkflow()

	assert.Equal(t, 300, workflow.Timeout())
	assert.Equal(t, ErrorModeFail, workflow.DefaultErrorMode())

	workflow.TimeoutSeconds = 60
	workflow.ErrorMode = ErrorModeContinue

	assert.Equal(t, 60, workflow.Timeout())
	assert.Equal(t, ErrorModeContinue, workflow.DefaultErrorMode())
}

func TestStepEffectiveErrorMode(t *testing.T) {
	step := &Step{ID: "a", Kind: StepKindTransform}

	assert.Equal(t, ErrorModeContinue, step.EffectiveErrorMode(ErrorModeContinue))

	step.ErrorMode = ErrorModeFail
	assert.Equal(t, ErrorModeFail, step.EffectiveErrorMode(ErrorModeContinue))
}

func TestStepUnmarshalDecodesUnionVariant(t *testing.T) {
	raw := `{
		"id": "lookup",
		"type": "external_service",
		"error_mode": "continue",
		"config": {"service": "weatherapi", "operation": "current", "config": {"q": "Seattle"}, "cache_ttl": 3600}
	}`

	var step Step
	require.NoError(t, json.Unmarshal([]byte(raw), &step))

	assert.Equal(t, "lookup", step.ID)
	assert.Equal(t, StepKindExternalService, step.Kind)
	assert.Equal(t, ErrorModeContinue, step.ErrorMode)
	require.NotNil(t, step.Service)
	assert.Equal(t, "weatherapi", step.Service.Service)
	assert.Equal(t, "current", step.Service.Operation)
	assert.Equal(t, "Seattle", step.Service.Params["q"])
	assert.Equal(t, 3600, step.Service.CacheTTL)
	assert.Nil(t, step.TextGen)
	assert.Nil(t, step.Transform)
}

func TestStepUnmarshalRejectsUnknownKind(t *testing.T) {
	raw := `{"id": "x", "type": "quantum", "config": {}}`

	var step Step
	require.ErrorIs(t, json.Unmarshal([]byte(raw), &step), ErrUnknownStepKind)
}

func TestStepMarshalRoundTrip(t *testing.T) {
	step := &Step{
		ID:   "shape",
		Kind: StepKindTransform,
		Transform: &TransformConfig{
			Operation: "extract_fields",
			Input:     "${steps.lookup.output}",
			Config:    map[string]any{"paths": map[string]any{"temp": "current.temp_c"}},
		},
	}

	data, err := json.Marshal(step)
	require.NoError(t, err)

	var decoded Step
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, step.ID, decoded.ID)
	require.NotNil(t, decoded.Transform)
	assert.Equal(t, "extract_fields", decoded.Transform.Operation)
	assert.Equal(t, "${steps.lookup.output}", decoded.Transform.Input)
}
