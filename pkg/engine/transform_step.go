package engine

import (
	"fmt"
	"strings"

	"github.com/tirandagan/llmflow/pkg/execctx"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/transform"
)

// runTransform resolves the step's input and configuration against the
// execution context and runs the named transformation. The failure policy
// follows the step's error mode, except that a configured default value
// switches the step to the default policy.
func (e *Engine) runTransform(step *models.Step, scope *execctx.Context, mode models.ErrorMode) (any, error) {
	cfg := step.Transform
	if cfg == nil {
		return nil, fmt.Errorf("step %q: %w", step.ID, models.ErrStepConfigMissing)
	}

	var input any

	if cfg.Input != "" {
		path := strings.TrimSuffix(strings.TrimPrefix(cfg.Input, "${"), "}")

		value, err := scope.Resolve(path)
		if err != nil {
			// Missing input degrades to nil so the failure policy decides,
			// matching how unresolved placeholders behave elsewhere.
			e.logger.Warn("transform input not found", "step", step.ID, "path", path, "error", err)
		}

		input = value
	} else {
		input = scope.Snapshot()
	}

	config, _ := scope.ResolveAny(cfg.Config).(map[string]any)

	policy := transform.PolicyFail

	switch {
	case cfg.Default != nil:
		policy = transform.PolicyDefault
	case mode == models.ErrorModeContinue:
		policy = transform.PolicyContinue
	}

	output, err := e.transforms.Execute(cfg.Operation, input, config, policy, cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.ID, err)
	}

	return output, nil
}
