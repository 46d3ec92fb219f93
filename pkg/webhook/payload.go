package webhook

import (
	"fmt"
	"time"

	"github.com/tirandagan/llmflow/pkg/models"
)

// Event identifies the webhook event type carried in the X-Webhook-Event
// header and the payload's "event" field.
type Event string

const (
	EventWorkflowCompleted Event = "workflow.completed"
	EventWorkflowFailed    Event = "workflow.failed"
	EventStepCompleted     Event = "llm.step.completed"
)

// BuildPayload assembles the event payload for a job. Step events carry the
// per-step data passed by the worker; run events read from the job's stored
// result. Error details in failure payloads are already sanitized by the
// engine before they reach the job record.
func BuildPayload(job *models.Job, event Event, stepData map[string]any) (map[string]any, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	switch event {
	case EventStepCompleted:
		payload := map[string]any{
			"event":       string(event),
			"job_id":      job.ID,
			"workflow_name": job.WorkflowName,
			"step_id":     stepData["step_id"],
			"result":      stepData["result"],
			"tokens":      stepData["tokens"],
			"cost_usd":    stepData["cost_usd"],
			"duration_ms": stepData["duration_ms"],
			"timestamp":   timestamp,
		}

		if job.DebugMode {
			payload["debug"] = map[string]any{
				"prompt":      stepData["prompt"],
				"model":       stepData["model"],
				"temperature": stepData["temperature"],
			}
		}

		return payload, nil
	case EventWorkflowCompleted:
		result := job.ResultData
		if result == nil {
			result = map[string]any{}
		}

		costData := map[string]any{
			"total_tokens":   0,
			"total_cost_usd": 0.0,
			"provider_calls": []any{},
		}

		if metadata, ok := result["metadata"].(map[string]any); ok {
			if tokens, ok := metadata["total_tokens"]; ok {
				costData["total_tokens"] = tokens
			}

			if cost, ok := metadata["total_cost_usd"]; ok {
				costData["total_cost_usd"] = cost
			}

			if calls, ok := metadata["provider_calls"]; ok {
				costData["provider_calls"] = calls
			}
		}

		payload := map[string]any{
			"event":         string(event),
			"job_id":        job.ID,
			"status":        "completed",
			"workflow_name": job.WorkflowName,
			"result":        result,
			"cost_data":     costData,
			"duration_ms":   job.DurationMS,
			"timestamp":     timestamp,
		}

		if job.UserID != "" {
			payload["user_id"] = job.UserID
		}

		return payload, nil
	case EventWorkflowFailed:
		payload := map[string]any{
			"event":         string(event),
			"job_id":        job.ID,
			"status":        "failed",
			"workflow_name": job.WorkflowName,
			"timestamp":     timestamp,
		}

		if job.ErrorMessage != "" {
			payload["error_message"] = job.ErrorMessage
		} else {
			payload["error_message"] = "Unknown error"
		}

		if job.ResultData != nil {
			if metadata, ok := job.ResultData["metadata"].(map[string]any); ok {
				if errorContext, ok := metadata["error_context"]; ok {
					payload["error"] = errorContext
				}
			}
		}

		if job.DurationMS > 0 {
			payload["duration_ms"] = job.DurationMS
		}

		if !job.CreatedAt.IsZero() {
			payload["created_at"] = job.CreatedAt.Format(time.RFC3339)
		}

		return payload, nil
	default:
		return nil, fmt.Errorf("unknown webhook event type %q", event)
	}
}
