package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/models"
)

// DefaultRetryDelays is the wait before each retry attempt. With three
// retries a delivery makes at most four attempts: immediate, +5s, +15s, +45s.
var DefaultRetryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

// ErrPermanentlyFailed is returned when every delivery attempt is exhausted.
var ErrPermanentlyFailed = errors.New("webhook delivery permanently failed")

// Store is the persistence surface the dispatcher needs: the job being
// notified and the immutable attempt log.
type Store interface {
	JobByID(ctx context.Context, id string) (*models.Job, error)
	RecordWebhookAttempt(ctx context.Context, attempt *models.WebhookAttempt) error
	MarkWebhookPermanentlyFailed(ctx context.Context, jobID string) error
}

// Notifier alerts an operator after a permanent delivery failure. Its own
// failures are logged and swallowed.
type Notifier interface {
	NotifyWebhookFailure(ctx context.Context, job *models.Job, attempts int, lastError string) error
}

// Dispatcher drives the retry loop around the sender. Each attempt is
// recorded whether or not it succeeds; delivery is at-least-once and
// receivers must dedupe on job id and event.
type Dispatcher struct {
	sender   *Sender
	store    Store
	notifier Notifier
	delays   []time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil delays slice uses
// DefaultRetryDelays; the notifier may be nil.
func NewDispatcher(sender *Sender, store Store, notifier Notifier, delays []time.Duration) *Dispatcher {
	if delays == nil {
		delays = DefaultRetryDelays
	}

	return &Dispatcher{
		sender:   sender,
		store:    store,
		notifier: notifier,
		delays:   delays,
		logger:   log.WithModule("webhook"),
	}
}

// Deliver sends one event for the job, retrying per the configured delays.
// It blocks until delivery succeeds, attempts are exhausted, or the context
// is canceled; callers run it on a worker, never on the submission path.
func (d *Dispatcher) Deliver(ctx context.Context, jobID string, event Event, stepData map[string]any) error {
	job, err := d.store.JobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job for webhook delivery: %w", err)
	}

	if job == nil {
		return fmt.Errorf("job %q not found for webhook delivery", jobID)
	}

	if job.WebhookURL == "" {
		d.logger.Debug("job has no webhook url, skipping delivery", "job_id", jobID)

		return nil
	}

	if job.WebhookPermanentlyFailed {
		d.logger.Info("skipping webhook delivery, already permanently failed", "job_id", jobID)

		return nil
	}

	payload, err := BuildPayload(job, event, stepData)
	if err != nil {
		return fmt.Errorf("failed to build webhook payload: %w", err)
	}

	maxAttempts := len(d.delays) + 1
	lastError := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		d.logger.Info("delivering webhook",
			"job_id", jobID, "event", event, "attempt", attempt, "max_attempts", maxAttempts)

		record := &models.WebhookAttempt{
			ID:            uuid.New().String(),
			JobID:         job.ID,
			AttemptNumber: attempt,
			WebhookURL:    job.WebhookURL,
			AttemptedAt:   time.Now().UTC(),
		}

		delivery, err := d.sender.Send(ctx, job.WebhookURL, event, payload, job.WebhookSecret)
		if err != nil {
			lastError = err.Error()
			record.ErrorMessage = lastError
		} else {
			record.Payload = delivery.Payload
			record.HTTPStatus = delivery.HTTPStatus
			record.ResponseBody = delivery.Body
			record.DurationMS = delivery.DurationMS

			if delivery.Success {
				d.record(ctx, record)
				d.logger.Info("webhook delivered", "job_id", jobID, "event", event, "attempt", attempt, "status", delivery.HTTPStatus)

				return nil
			}

			lastError = fmt.Sprintf("HTTP %d: %s", delivery.HTTPStatus, delivery.Body)
		}

		if attempt < maxAttempts {
			delay := d.delays[attempt-1]
			next := time.Now().UTC().Add(delay)
			record.NextRetryAt = &next
			d.record(ctx, record)

			d.logger.Warn("webhook delivery failed, will retry",
				"job_id", jobID, "attempt", attempt, "retry_in", delay, "error", lastError)

			if err := wait(ctx, delay); err != nil {
				return fmt.Errorf("webhook delivery canceled: %w", err)
			}

			continue
		}

		d.record(ctx, record)
	}

	if err := d.store.MarkWebhookPermanentlyFailed(ctx, job.ID); err != nil {
		d.logger.Error("failed to mark webhook permanently failed", "job_id", jobID, "error", err)
	}

	d.logger.Error("webhook delivery permanently failed",
		"job_id", jobID, "event", event, "attempts", maxAttempts, "error", lastError)

	if d.notifier != nil {
		if err := d.notifier.NotifyWebhookFailure(ctx, job, maxAttempts, lastError); err != nil {
			d.logger.Error("operator notification failed", "job_id", jobID, "error", err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %s", ErrPermanentlyFailed, maxAttempts, lastError)
}

// record appends to the immutable attempt log. Log failures never abort a
// delivery in progress.
func (d *Dispatcher) record(ctx context.Context, attempt *models.WebhookAttempt) {
	if err := d.store.RecordWebhookAttempt(ctx, attempt); err != nil {
		d.logger.Warn("failed to record webhook attempt",
			"job_id", attempt.JobID, "attempt", attempt.AttemptNumber, "error", err)
	}
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
