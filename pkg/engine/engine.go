// Package engine executes workflow definitions step by step: sequential
// dispatch over the closed step union, a shared variable context between
// steps, per-step error modes, and aggregate accounting for provider usage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tirandagan/llmflow/pkg/errctx"
	"github.com/tirandagan/llmflow/pkg/execctx"
	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/prompt"
	"github.com/tirandagan/llmflow/pkg/provider"
	"github.com/tirandagan/llmflow/pkg/services"
	"github.com/tirandagan/llmflow/pkg/transform"
)

// ErrWorkflowTimeout is returned when a run exceeds its total time budget.
/// The check is cooperative: it runs before each step, so a step already in
// flight finishes before the timeout is observed.
var ErrWorkflowTimeout = errors.New("workflow exceeded timeout")

const outputPreviewLimit = 500

// ProgressFunc is notified after every executed step, successful or not.
// Callback failures are logged and swallowed; they never affect the run.
type ProgressFunc func(stepID string, index, total int, output any)

// RunOptions carries per-run settings that are not part of the workflow
// definition.
type RunOptions struct {
	// UserID attributes external-service calls for per-user rate limiting.
	// A user_id field in the input data takes precedence.
	UserID string
	// TimeoutOverride replaces the workflow's own timeout when positive.
	TimeoutOverride time.Duration
	// Progress, when set, is invoked after each step completes.
	Progress ProgressFunc
}

// Engine runs workflows. All collaborators are injected; an Engine holds no
// global state and is safe for concurrent use across runs.
type Engine struct {
	provider   provider.Provider
	prompts    *prompt.Loader
	transforms *transform.Registry
	invoker    *services.Invoker
	logger     *slog.Logger
}

// New creates an engine. Any collaborator may be nil; steps that need a
// missing one fail with a configuration error at execution time.
func New(textProvider provider.Provider, prompts *prompt.Loader, transforms *transform.Registry, invoker *services.Invoker) *Engine {
	if transforms == nil {
		transforms = transform.NewRegistry()
	}

	return &Engine{
		provider:   textProvider,
		prompts:    prompts,
		transforms: transforms,
		invoker:    invoker,
		logger:     log.WithModule("engine"),
	}
}

// Execute runs the workflow against the input data and always returns a
// result: on failure Success is false and the metadata carries the error and
// its structured context, alongside the step log for whatever did run.
func (e *Engine) Execute(ctx context.Context, workflow *models.Workflow, input map[string]any, opts RunOptions) *models.RunResult {
	start := time.Now()

	timeout := time.Duration(workflow.Timeout()) * time.Second
	if opts.TimeoutOverride > 0 {
		timeout = opts.TimeoutOverride
	}

	deadline := start.Add(timeout)
	scope := execctx.New(input, e.logger)
	total := len(workflow.Steps)

	run := &runState{
		workflow:  workflow,
		scope:     scope,
		responses: make(map[string]*provider.Response),
	}

	e.logger.Info("executing workflow", "workflow", workflow.Name, "steps", total)

	for i, step := range workflow.Steps {
		index := i + 1

		if time.Now().After(deadline) {
			err := fmt.Errorf("workflow %q: %w (%s) at step %d/%d", workflow.Name, ErrWorkflowTimeout, timeout, index, total)
			e.logger.Error("workflow timed out", "workflow", workflow.Name, "step", step.ID)

			return e.failureResult(run, start, err)
		}

		if err := ctx.Err(); err != nil {
			return e.failureResult(run, start, fmt.Errorf("workflow %q canceled: %w", workflow.Name, err))
		}

		mode := step.EffectiveErrorMode(workflow.DefaultErrorMode())

		e.logger.Info("executing step", "workflow", workflow.Name, "step", step.ID, "kind", step.Kind, "index", index, "total", total)

		stepStart := time.Now()
		output, response, err := e.runStep(ctx, step, scope, mode, opts.UserID)
		duration := time.Since(stepStart).Milliseconds()

		record := models.StepRecord{
			StepID:     step.ID,
			Kind:       step.Kind,
			DurationMS: duration,
		}

		if err != nil {
			record.Error = err.Error()
			scope.SetStepError(step.ID, err.Error())
			run.records = append(run.records, record)

			if mode == models.ErrorModeContinue {
				e.logger.Warn("step failed but continuing", "step", step.ID, "error", err)
				e.notifyProgress(opts.Progress, step.ID, index, total, nil)

				continue
			}

			e.logger.Error("step failed", "step", step.ID, "error", err)

			return e.failureResult(run, start, fmt.Errorf("step %q failed: %w", step.ID, err))
		}

		if output == nil {
			// A transform running under the continue policy reports its
			// failure as a nil result. The step is logged as unsuccessful
			// but the run proceeds.
			run.records = append(run.records, record)
			e.notifyProgress(opts.Progress, step.ID, index, total, nil)

			continue
		}

		record.Success = true

		if response != nil {
			stored := responseToMap(response)
			scope.SetStepOutput(step.ID, stored, step.OutputVar)

			record.Tokens = response.Usage.TotalTokens
			record.CostUSD = response.CostUSD
			record.Output = previewOutput(stored)

			run.totalTokens += response.Usage.TotalTokens
			run.totalCost += response.CostUSD
			run.responses[step.ID] = response
			run.calls = append(run.calls, providerCall(step.ID, response))
		} else {
			scope.SetStepOutput(step.ID, output, step.OutputVar)
			record.Output = previewOutput(output)
		}

		run.records = append(run.records, record)

		e.logger.Info("step completed", "step", step.ID, "duration_ms", duration)
		e.notifyProgress(opts.Progress, step.ID, index, total, output)
	}

	duration := time.Since(start).Milliseconds()
	result := &models.RunResult{
		WorkflowName:  workflow.Name,
		Success:       true,
		Output:        e.buildFinalOutput(run),
		StepsExecuted: run.records,
		Metadata: models.RunMetadata{
			WorkflowVersion: workflow.Version,
			TotalSteps:      total,
			StepsCompleted:  len(run.records),
			DurationMS:      duration,
			TotalTokens:     run.totalTokens,
			TotalCostUSD:    run.totalCost,
			ProviderCalls:   run.calls,
		},
	}

	e.logger.Info("workflow completed",
		"workflow", workflow.Name,
		"duration_ms", duration,
		"total_tokens", run.totalTokens,
		"total_cost_usd", run.totalCost)

	return result
}

// runState accumulates per-run bookkeeping as steps execute.
type runState struct {
	workflow    *models.Workflow
	scope       *execctx.Context
	records     []models.StepRecord
	calls       []models.ProviderCall
	responses   map[string]*provider.Response
	totalTokens int
	totalCost   float64
}

// runStep dispatches over the closed step union. Text-gen steps additionally
// return the provider response for usage accounting.
func (e *Engine) runStep(ctx context.Context, step *models.Step, scope *execctx.Context, mode models.ErrorMode, userID string) (any, *provider.Response, error) {
	switch step.Kind {
	case models.StepKindTextGen:
		response, err := e.runTextGen(ctx, step, scope)
		if err != nil {
			return nil, nil, err
		}

		return response, response, nil
	case models.StepKindTransform:
		output, err := e.runTransform(step, scope, mode)

		return output, nil, err
	case models.StepKindExternalService:
		output, err := e.runExternalService(ctx, step, scope, userID)

		return output, nil, err
	default:
		return nil, nil, fmt.Errorf("step %q: %w: %q", step.ID, models.ErrUnknownStepKind, step.Kind)
	}
}

func (e *Engine) failureResult(run *runState, start time.Time, err error) *models.RunResult {
	errorContext := errctx.FromError(err, "")

	return &models.RunResult{
		WorkflowName:  run.workflow.Name,
		Success:       false,
		StepsExecuted: run.records,
		Metadata: models.RunMetadata{
			WorkflowVersion: run.workflow.Version,
			TotalSteps:      len(run.workflow.Steps),
			StepsCompleted:  len(run.records),
			DurationMS:      time.Since(start).Milliseconds(),
			TotalTokens:     run.totalTokens,
			TotalCostUSD:    run.totalCost,
			ProviderCalls:   run.calls,
			Error:           err.Error(),
			ErrorContext:    errorContext.ToMap(),
		},
	}
}

// buildFinalOutput shapes the run's final output. A run ending in a text-gen
// step reduces to the content plus its accounting fields; everything else
// returns the last step's stored output as-is.
func (e *Engine) buildFinalOutput(run *runState) any {
	steps := run.workflow.Steps
	if len(steps) == 0 {
		return nil
	}

	lastID := steps[len(steps)-1].ID
	if response, ok := run.responses[lastID]; ok {
		return map[string]any{
			"content":  response.Content,
			"model":    response.Model,
			"tokens":   response.Usage.TotalTokens,
			"cost_usd": response.CostUSD,
		}
	}

	output, err := run.scope.Resolve("steps." + lastID + ".output")
	if err != nil {
		return nil
	}

	return output
}

func (e *Engine) notifyProgress(fn ProgressFunc, stepID string, index, total int, output any) {
	if fn == nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Warn("progress callback failed", "step", stepID, "panic", recovered)
		}
	}()

	fn(stepID, index, total, output)
}

func responseToMap(response *provider.Response) map[string]any {
	return map[string]any{
		"content":  response.Content,
		"model":    response.Model,
		"provider": response.Provider,
		"usage": map[string]any{
			"input_tokens":  response.Usage.InputTokens,
			"output_tokens": response.Usage.OutputTokens,
			"total_tokens":  response.Usage.TotalTokens,
		},
		"cost_usd":    response.CostUSD,
		"duration_ms": response.DurationMS,
	}
}

func providerCall(stepID string, response *provider.Response) models.ProviderCall {
	metadata := map[string]any{"step_id": stepID}
	if id, ok := response.Metadata["response_id"]; ok {
		metadata["response_id"] = id
	}

	return models.ProviderCall{
		Provider:     response.Provider,
		Model:        response.Model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		TotalTokens:  response.Usage.TotalTokens,
		CostUSD:      response.CostUSD,
		DurationMS:   response.DurationMS,
		Metadata:     metadata,
	}
}

// previewOutput trims step outputs for the persisted step log. Full outputs
// stay in the execution context only.
func previewOutput(output any) any {
	switch typed := output.(type) {
	case string:
		return truncate(typed)
	case map[string]any:
		preview := make(map[string]any, len(typed))
		for key, value := range typed {
			if text, ok := value.(string); ok {
				preview[key] = truncate(text)
			} else {
				preview[key] = value
			}
		}

		return preview
	default:
		return output
	}
}

func truncate(text string) string {
	if len(text) <= outputPreviewLimit {
		return text
	}

	return text[:outputPreviewLimit] + "..."
}
