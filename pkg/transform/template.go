package transform

import (
	"fmt"

	"github.com/tirandagan/llmflow/pkg/execctx"
)

// renderTemplate renders a string template against the input data merged with
// configured variables, reusing the run context's multi-placeholder
// resolution: placeholders such as ${input.city} are substituted, and
// unresolvable ones stay literal.
func renderTemplate(input any, config map[string]any, opts Options) (any, error) {
	template := stringOption(config, "template")
	if template == "" {
		return nil, fmt.Errorf("missing 'template' in config")
	}

	merged := make(map[string]any)

	if asMap, ok := input.(map[string]any); ok {
		for key, value := range asMap {
			merged[key] = value
		}
	}

	if variables, ok := config["variables"].(map[string]any); ok {
		for key, value := range variables {
			merged[key] = value
		}
	}

	scope := execctx.New(merged, opts.Logger)

	return scope.ResolveString(template), nil
}
