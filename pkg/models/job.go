package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a workflow job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Job is one queued or executed run of a workflow against specific input data.
type Job struct {
	ID           string         `json:"id"`
	TaskID       string         `json:"task_id,omitempty"`
	WorkflowName string         `json:"workflow_name" validate:"required"`
	UserID       string         `json:"user_id,omitempty"`
	Status       JobStatus      `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	ResultData   map[string]any `json:"result_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`
	DebugMode    bool           `json:"debug_mode,omitempty"`
	Progress     *Progress      `json:"progress,omitempty"`

	WebhookURL               string `json:"webhook_url,omitempty"`
	WebhookSecret            string `json:"-"`
	WebhookPermanentlyFailed bool   `json:"webhook_permanently_failed,omitempty"`

	DurationMS  int64      `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for the named workflow.
func NewJob(workflowName string, input map[string]any) *Job {
	return &Job{
		ID:           uuid.New().String(),
		WorkflowName: workflowName,
		Status:       JobStatusPending,
		InputData:    input,
		CreatedAt:    time.Now().UTC(),
	}
}

// Progress is the polling view of a running job.
type Progress struct {
	CurrentStep    string `json:"current_step"`
	StepsCompleted int    `json:"steps_completed"`
	TotalSteps     int    `json:"total_steps"`
}
