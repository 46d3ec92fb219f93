package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tirandagan/llmflow/pkg/errctx"
	"github.com/tirandagan/llmflow/pkg/execctx"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/ratelimit"
	"github.com/tirandagan/llmflow/pkg/services"
)

// runExternalService resolves the step's parameters against the execution
// context and calls the adapter through the invoker, which layers caching
// and rate limiting in front of the upstream API.
func (e *Engine) runExternalService(ctx context.Context, step *models.Step, scope *execctx.Context, userID string) (any, error) {
	cfg := step.Service
	if cfg == nil {
		return nil, fmt.Errorf("step %q: %w", step.ID, models.ErrStepConfigMissing)
	}

	if e.invoker == nil {
		return nil, errctx.ConfigError(
			fmt.Sprintf("step %q calls service %q but no service invoker is configured", step.ID, cfg.Service),
		)
	}

	params, _ := scope.ResolveAny(cfg.Params).(map[string]any)

	// A user_id in the workflow input attributes the call for per-user
	// rate limiting; the job-level user id is the fallback.
	if value, err := scope.Resolve("input.user_id"); err == nil {
		if id, ok := value.(string); ok && id != "" {
			userID = id
		}
	}

	ttl := time.Duration(cfg.CacheTTL) * time.Second

	response, err := e.invoker.Call(ctx, cfg.Service, cfg.Operation, params, userID, ttl)
	if err != nil {
		return nil, e.wrapServiceError(step, cfg, params, err)
	}

	if response.Cached {
		e.logger.Debug("served from cache", "step", step.ID, "service", cfg.Service, "operation", cfg.Operation)
	}

	return response.Data, nil
}

// wrapServiceError classifies invoker failures: definition problems become
// configuration errors (never retried), rate limits become retryable
// external errors carrying their retry-after hint.
func (e *Engine) wrapServiceError(step *models.Step, cfg *models.ExternalServiceConfig, params map[string]any, err error) error {
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		context := errctx.New("RateLimitError", errctx.CategoryExternal,
			fmt.Sprintf("step %q: %v", step.ID, err)).
			WithStep(step.ID).
			WithService(cfg.Service, cfg.Operation).
			WithRetry(limitErr.RetryAfter).
			WithSuggestions("Wait for the rate limit window to pass before retrying")

		return errctx.NewError(context, err)
	}

	if errors.Is(err, services.ErrUnknownService) ||
		errors.Is(err, services.ErrUnsupportedOperation) ||
		errors.Is(err, services.ErrMissingParameter) ||
		errors.Is(err, services.ErrAuth) {
		context := errctx.New("ConfigurationError", errctx.CategoryConfig,
			fmt.Sprintf("step %q: %v", step.ID, err)).
			WithStep(step.ID).
			WithService(cfg.Service, cfg.Operation).
			WithSuggestions(errctx.Suggestions(err, cfg.Service, cfg.Operation)...)

		return errctx.NewError(context, err)
	}

	context := errctx.New("ExternalAPIError", errctx.CategoryExternal,
		fmt.Sprintf("step %q: call to %s.%s failed: %v", step.ID, cfg.Service, cfg.Operation, err)).
		WithStep(step.ID).
		WithService(cfg.Service, cfg.Operation).
		WithInputs(params)

	if errctx.IsRetryable(err) {
		context.WithRetry(errctx.RetryAfter(err))
	}

	return errctx.NewError(context, err)
}
