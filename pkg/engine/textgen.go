package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tirandagan/llmflow/pkg/errctx"
	"github.com/tirandagan/llmflow/pkg/execctx"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/prompt"
	"github.com/tirandagan/llmflow/pkg/provider"
)

// runTextGen builds the prompt for a text-gen step, resolves its variables
// from the execution context, and calls the provider.
func (e *Engine) runTextGen(ctx context.Context, step *models.Step, scope *execctx.Context) (*provider.Response, error) {
	cfg := step.TextGen
	if cfg == nil {
		return nil, fmt.Errorf("step %q: %w", step.ID, models.ErrStepConfigMissing)
	}

	if e.provider == nil {
		return nil, errctx.ConfigError(
			fmt.Sprintf("step %q requires a text generation provider but none is configured", step.ID),
			"Set the provider API key in the worker configuration",
		)
	}

	promptText, err := e.buildPrompt(step.ID, cfg, scope)
	if err != nil {
		return nil, err
	}

	messages := []provider.Message{{Role: "user", Content: promptText}}

	response, err := e.provider.Generate(ctx, messages, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	if err != nil {
		return nil, e.wrapProviderError(step.ID, cfg.Model, err)
	}

	e.logger.Info("text generation completed",
		"step", step.ID,
		"model", response.Model,
		"tokens", response.Usage.TotalTokens,
		"cost_usd", response.CostUSD,
		"duration_ms", response.DurationMS)

	return response, nil
}

// buildPrompt loads the template (or takes the inline text) and substitutes
// ${...} variables resolved from the execution context. Literal variable
// values pass through unchanged.
func (e *Engine) buildPrompt(stepID string, cfg *models.TextGenConfig, scope *execctx.Context) (string, error) {
	text := cfg.Prompt

	if cfg.PromptTemplate != "" {
		if e.prompts == nil {
			return "", errctx.ConfigError(
				fmt.Sprintf("step %q references prompt template %q but no prompt directory is configured", stepID, cfg.PromptTemplate),
			)
		}

		loaded, err := e.prompts.Load(cfg.PromptTemplate)
		if err != nil {
			context := errctx.New("ConfigurationError", errctx.CategoryConfig,
				fmt.Sprintf("step %q: failed to load prompt template %q: %v", stepID, cfg.PromptTemplate, err)).
				WithStep(stepID).
				WithSuggestions("Check that the template exists under the prompt directory")

			return "", errctx.NewError(context, err)
		}

		text = loaded
	}

	variables := make(map[string]any, len(cfg.Variables))
	for name, reference := range cfg.Variables {
		variables[name] = scope.ResolveAny(reference)
	}

	return prompt.Substitute(text, variables), nil
}

// wrapProviderError attaches a structured context to provider failures so
// the API surface can report auth and quota problems without leaking keys.
func (e *Engine) wrapProviderError(stepID, model string, err error) error {
	switch {
	case errors.Is(err, provider.ErrAuth):
		return errctx.NewError(
			errctx.New("ConfigurationError", errctx.CategoryConfig,
				fmt.Sprintf("step %q: provider rejected credentials", stepID)).
				WithStep(stepID).
				WithSuggestions("Verify the provider API key is set and valid"),
			err)
	case errors.Is(err, provider.ErrRateLimited), errors.Is(err, provider.ErrTimeout):
		context := errctx.New("ExternalAPIError", errctx.CategoryExternal,
			fmt.Sprintf("step %q: text generation with model %q failed: %v", stepID, model, err)).
			WithStep(stepID).
			WithRetry(errctx.RetryAfter(err))

		return errctx.NewError(context, err)
	default:
		return errctx.ExternalError(
			fmt.Sprintf("step %q: text generation with model %q failed: %v", stepID, model, err), err)
	}
}
