package web

import (
	"time"

	"github.com/tirandagan/llmflow/pkg/models"
)

// ExecuteRequest is the body of POST /workflows/:name/execute.
type ExecuteRequest struct {
	Input         map[string]any `json:"input"`
	UserID        string         `json:"user_id,omitempty"        validate:"omitempty,max=100"`
	WebhookURL    string         `json:"webhook_url,omitempty"    validate:"omitempty,url"`
	WebhookSecret string         `json:"webhook_secret,omitempty"`
	DebugMode     bool           `json:"debug_mode,omitempty"`
}

// ExecuteResponse acknowledges an accepted job.
type ExecuteResponse struct {
	JobID     string `json:"job_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// JobResponse is the polling view of a job.
type JobResponse struct {
	JobID        string           `json:"job_id"`
	WorkflowName string           `json:"workflow_name"`
	Status       string           `json:"status"`
	Progress     *models.Progress `json:"progress,omitempty"`
	Result       map[string]any   `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	DurationMS   int64            `json:"duration_ms,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`

	WebhookPermanentlyFailed bool `json:"webhook_permanently_failed,omitempty"`
}

// WebhookAttemptResponse is one row of the delivery attempt log.
type WebhookAttemptResponse struct {
	AttemptNumber int        `json:"attempt_number"`
	HTTPStatus    int        `json:"http_status,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	DurationMS    int64      `json:"duration_ms"`
	AttemptedAt   time.Time  `json:"attempted_at"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
}

func newJobResponse(job *models.Job) JobResponse {
	return JobResponse{
		JobID:                    job.ID,
		WorkflowName:             job.WorkflowName,
		Status:                   string(job.Status),
		Progress:                 job.Progress,
		Result:                   job.ResultData,
		Error:                    job.ErrorMessage,
		DurationMS:               job.DurationMS,
		CreatedAt:                job.CreatedAt,
		StartedAt:                job.StartedAt,
		CompletedAt:              job.CompletedAt,
		WebhookPermanentlyFailed: job.WebhookPermanentlyFailed,
	}
}

func newWebhookAttemptResponse(attempt *models.WebhookAttempt) WebhookAttemptResponse {
	return WebhookAttemptResponse{
		AttemptNumber: attempt.AttemptNumber,
		HTTPStatus:    attempt.HTTPStatus,
		ErrorMessage:  attempt.ErrorMessage,
		DurationMS:    attempt.DurationMS,
		AttemptedAt:   attempt.AttemptedAt,
		NextRetryAt:   attempt.NextRetryAt,
	}
}
