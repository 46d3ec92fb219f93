// Package persistence defines the storage surface for workflow jobs, the
// webhook attempt log, provider usage accounting, and the persistent layer
// of the response cache. Column layout is implementation detail; callers
// program against this interface only.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/tirandagan/llmflow/pkg/models"
)

var (
	// ErrJobNotFound indicates no job exists for the given identifier.
	ErrJobNotFound = errors.New("job not found")
)

// Repository is the narrow storage interface shared by all backends. The
// cache-entry methods satisfy the cache manager's store contract.
type Repository interface {
	// SaveJob inserts or fully replaces a job record.
	SaveJob(ctx context.Context, job *models.Job) error
	// JobByID returns the job or ErrJobNotFound.
	JobByID(ctx context.Context, id string) (*models.Job, error)
	// JobsByStatus returns jobs in the given state, oldest first.
	JobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// UpdateJobProgress stores the polling snapshot without rewriting the job.
	UpdateJobProgress(ctx context.Context, jobID string, progress *models.Progress) error
	// MarkWebhookPermanentlyFailed flags the job after delivery exhaustion.
	MarkWebhookPermanentlyFailed(ctx context.Context, jobID string) error

	// RecordWebhookAttempt appends to the immutable delivery log.
	RecordWebhookAttempt(ctx context.Context, attempt *models.WebhookAttempt) error
	// WebhookAttempts returns the delivery log for a job, in attempt order.
	WebhookAttempts(ctx context.Context, jobID string) ([]*models.WebhookAttempt, error)

	// RecordProviderUsage appends one provider call for usage accounting.
	RecordProviderUsage(ctx context.Context, jobID string, call *models.ProviderCall) error

	// GetCacheEntry returns the unexpired entry or nil on miss.
	GetCacheEntry(ctx context.Context, service, operation, key string) (*models.CacheEntry, error)
	// UpsertCacheEntry writes an entry keyed by (service, operation, key).
	UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error
	// RecordCacheHit bumps the hit counter and refreshes last access.
	RecordCacheHit(ctx context.Context, service, operation, key string, accessedAt time.Time) error
	// DeleteExpiredCacheEntries removes expired entries, returning the count.
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
