package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tirandagan/llmflow/pkg/cache"
	"github.com/tirandagan/llmflow/pkg/engine"
	"github.com/tirandagan/llmflow/pkg/eventbus"
	"github.com/tirandagan/llmflow/pkg/events"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/otelhelper"
	"github.com/tirandagan/llmflow/pkg/persistence"
	"github.com/tirandagan/llmflow/pkg/webhook"
	"github.com/tirandagan/llmflow/pkg/workflow"
)

// Worker consumes job events and executes workflow runs.
type Worker struct {
	id         string
	logger     *slog.Logger
	repo       persistence.Repository
	eventBus   eventbus.EventBus
	engine     *engine.Engine
	workflows  *workflow.Loader
	dispatcher *webhook.Dispatcher
	cache      *cache.Manager
	tracer     trace.Tracer
	cron       *cron.Cron
}

func NewWorker(
	id string,
	repo persistence.Repository,
	eventBus eventbus.EventBus,
	runner *engine.Engine,
	workflows *workflow.Loader,
	dispatcher *webhook.Dispatcher,
	cacheManager *cache.Manager,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:         id,
		logger:     logger,
		repo:       repo,
		eventBus:   eventBus,
		engine:     runner,
		workflows:  workflows,
		dispatcher: dispatcher,
		cache:      cacheManager,
		cron:       cron.New(),
	}
}

// Start subscribes to job events and blocks until the process is signalled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	tracer, err := otelhelper.NewTracer(ctx, "llmflow-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled", "error", err)

		tracer = otel.Tracer("llmflow-worker")
	}

	w.tracer = tracer

	err = w.eventBus.Handle(events.JobSubmittedEvent, w.handleJobSubmitted)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.WebhookDeliveryEvent, w.handleWebhookDelivery)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	_, err = w.cron.AddFunc("@hourly", func() {
		removed, sweepErr := w.cache.Sweep(ctx)
		if sweepErr != nil {
			w.logger.ErrorContext(ctx, "Cache sweep failed", "error", sweepErr)

			return
		}

		w.logger.InfoContext(ctx, "Cache sweep completed", "removed", removed)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	defer w.cron.Stop()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Worker) handleJobSubmitted(ctx context.Context, event any) error {
	submitted, ok := event.(*events.JobSubmitted)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for JobSubmitted")

		return nil
	}

	logger := w.logger.With(
		"job_id", submitted.JobID,
		"workflow_name", submitted.WorkflowName,
		"event_id", submitted.ID,
	)
	logger.InfoContext(ctx, "Processing job submitted event")

	job, err := w.repo.JobByID(ctx, submitted.JobID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load job", "error", err)

		return err
	}

	if job.Status != models.JobStatusPending {
		logger.WarnContext(ctx, "Skipping job in unexpected state", "status", job.Status)

		return nil
	}

	w.runJob(ctx, logger, job, submitted)

	return nil
}

func (w *Worker) runJob(ctx context.Context, logger *slog.Logger, job *models.Job, submitted *events.JobSubmitted) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "job.run",
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.WorkflowNameKey, job.WorkflowName),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	job.TaskID = submitted.ID

	err := w.repo.SaveJob(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark job running", "error", err)
	}

	w.publishStarted(ctx, job)

	definition, err := w.workflows.Load(job.WorkflowName)
	if err != nil {
		otelhelper.SetError(span, err)
		w.finishJob(ctx, logger, job, nil, err)

		return
	}

	result := w.engine.Execute(ctx, definition, job.InputData, engine.RunOptions{
		UserID: job.UserID,
		Progress: func(stepID string, index, total int, _ any) {
			logger.DebugContext(ctx, "Step finished", "step_id", stepID, "step", index, "total", total)

			snapshot := &models.Progress{
				CurrentStep:    stepID,
				StepsCompleted: index,
				TotalSteps:     total,
			}
			if progressErr := w.repo.UpdateJobProgress(ctx, job.ID, snapshot); progressErr != nil {
				logger.ErrorContext(ctx, "Failed to persist job progress", "error", progressErr)
			}
		},
	})

	for i := range result.Metadata.ProviderCalls {
		err = w.repo.RecordProviderUsage(ctx, job.ID, &result.Metadata.ProviderCalls[i])
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record provider usage", "error", err)
		}
	}

	if !result.Success {
		otelhelper.SetError(span, errors.New(result.Metadata.Error))
	}

	w.finishJob(ctx, logger, job, result, nil)
}

// finishJob persists the terminal job state and publishes the finished and
// webhook delivery events. loadErr covers failures before the engine ran.
func (w *Worker) finishJob(ctx context.Context, logger *slog.Logger, job *models.Job, result *models.RunResult, loadErr error) {
	now := time.Now().UTC()
	job.CompletedAt = &now

	if job.StartedAt != nil {
		job.DurationMS = now.Sub(*job.StartedAt).Milliseconds()
	}

	switch {
	case loadErr != nil:
		job.Status = models.JobStatusFailed
		job.ErrorMessage = loadErr.Error()
	case result.Success:
		job.Status = models.JobStatusCompleted
		job.ResultData = result.ToMap()
	case strings.Contains(result.Metadata.Error, engine.ErrWorkflowTimeout.Error()):
		job.Status = models.JobStatusTimedOut
		job.ErrorMessage = result.Metadata.Error
		job.ResultData = result.ToMap()
	default:
		job.Status = models.JobStatusFailed
		job.ErrorMessage = result.Metadata.Error
		job.ResultData = result.ToMap()
	}

	err := w.repo.SaveJob(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist job result", "error", err)
	}

	logger.InfoContext(ctx, "Job finished", "status", job.Status, "duration_ms", job.DurationMS)

	finished := events.JobFinished{
		BaseEvent:    events.NewBaseEvent(events.JobFinishedEvent, job.ID),
		WorkflowName: job.WorkflowName,
		Status:       string(job.Status),
		Result:       job.ResultData,
		Error:        job.ErrorMessage,
		DurationMS:   job.DurationMS,
	}
	finished.WorkerID = w.id

	err = w.eventBus.Publish(ctx, job.ID, finished)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish job finished event", "error", err)
	}

	w.publishWebhooks(ctx, logger, job, result)
}

func (w *Worker) publishStarted(ctx context.Context, job *models.Job) {
	started := events.JobStarted{
		BaseEvent:    events.NewBaseEvent(events.JobStartedEvent, job.ID),
		WorkflowName: job.WorkflowName,
	}
	started.WorkerID = w.id

	err := w.eventBus.Publish(ctx, job.ID, started)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish job started event", "error", err)
	}
}

// publishWebhooks emits one delivery request per completed text generation
// step, then the terminal workflow event.
func (w *Worker) publishWebhooks(ctx context.Context, logger *slog.Logger, job *models.Job, result *models.RunResult) {
	if job.WebhookURL == "" {
		return
	}

	if result != nil {
		for _, record := range result.StepsExecuted {
			if record.Kind != models.StepKindTextGen || !record.Success {
				continue
			}

			w.publishDelivery(ctx, logger, job.ID, string(webhook.EventStepCompleted), map[string]any{
				"step_id":     record.StepID,
				"result":      record.Output,
				"tokens":      record.Tokens,
				"cost_usd":    record.CostUSD,
				"duration_ms": record.DurationMS,
			})
		}
	}

	terminal := webhook.EventWorkflowCompleted
	if job.Status != models.JobStatusCompleted {
		terminal = webhook.EventWorkflowFailed
	}

	w.publishDelivery(ctx, logger, job.ID, string(terminal), nil)
}

func (w *Worker) publishDelivery(ctx context.Context, logger *slog.Logger, jobID, event string, stepData map[string]any) {
	delivery := events.WebhookDelivery{
		BaseEvent: events.NewBaseEvent(events.WebhookDeliveryEvent, jobID),
		Event:     event,
		StepData:  stepData,
	}
	delivery.WorkerID = w.id

	err := w.eventBus.Publish(ctx, jobID, delivery)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish webhook delivery event", "error", err)
	}
}

func (w *Worker) handleWebhookDelivery(ctx context.Context, event any) error {
	delivery, ok := event.(*events.WebhookDelivery)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WebhookDelivery")

		return nil
	}

	logger := w.logger.With("job_id", delivery.JobID, "event", delivery.Event)

	err := w.dispatcher.Deliver(ctx, delivery.JobID, webhook.Event(delivery.Event), delivery.StepData)
	if err != nil {
		if errors.Is(err, webhook.ErrPermanentlyFailed) {
			logger.ErrorContext(ctx, "Webhook delivery permanently failed", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Webhook delivery failed", "error", err)
	}

	return nil
}
