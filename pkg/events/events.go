// Package events defines event types and structures for job lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all job lifecycle events.
const Topic = "llmflow.jobs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Job lifecycle events.
	JobSubmittedEvent EventType = "job.submitted"
	JobStartedEvent   EventType = "job.started"
	JobFinishedEvent  EventType = "job.finished"

	// WebhookDeliveryEvent requests an outbound webhook delivery for a job.
	WebhookDeliveryEvent EventType = "webhook.delivery"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"job_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// JobSubmitted is published when a job is accepted for execution.
type JobSubmitted struct {
	BaseEvent

	WorkflowName string         `json:"workflow_name"`
	Input        map[string]any `json:"input,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	DebugMode    bool           `json:"debug_mode,omitempty"`
}

func (j JobSubmitted) GetType() EventType {
	return JobSubmittedEvent
}

// JobStarted is published when a worker picks up a job.
type JobStarted struct {
	BaseEvent

	WorkflowName string `json:"workflow_name"`
}

func (j JobStarted) GetType() EventType {
	return JobStartedEvent
}

// JobFinished is published when a run ends, regardless of outcome.
type JobFinished struct {
	BaseEvent

	WorkflowName string         `json:"workflow_name"`
	Status       string         `json:"status"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
}

func (j JobFinished) GetType() EventType {
	return JobFinishedEvent
}

// WebhookDelivery asks the webhook dispatcher to deliver one event for a job.
type WebhookDelivery struct {
	BaseEvent

	Event    string         `json:"event"`
	StepData map[string]any `json:"step_data,omitempty"`
}

func (w WebhookDelivery) GetType() EventType {
	return WebhookDeliveryEvent
}

func NewBaseEvent(eventType EventType, jobID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JobID:     jobID,
		Metadata:  make(map[string]any),
	}
}
