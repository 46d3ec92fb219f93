// Package memory provides an in-process Repository for tests and local
// development. All state is lost on shutdown.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/persistence"
)

type cacheKey struct {
	service   string
	operation string
	key       string
}

// Repository implements persistence.Repository with mutex-guarded maps.
type Repository struct {
	mu       sync.RWMutex
	jobs     map[string]*models.Job
	attempts map[string][]*models.WebhookAttempt
	usage    map[string][]*models.ProviderCall
	cache    map[cacheKey]*models.CacheEntry
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		jobs:     make(map[string]*models.Job),
		attempts: make(map[string][]*models.WebhookAttempt),
		usage:    make(map[string][]*models.ProviderCall),
		cache:    make(map[cacheKey]*models.CacheEntry),
	}
}

func (r *Repository) SaveJob(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *job
	r.jobs[job.ID] = &copied

	return nil
}

func (r *Repository) JobByID(_ context.Context, id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", persistence.ErrJobNotFound, id)
	}

	copied := *job

	return &copied, nil
}

func (r *Repository) JobsByStatus(_ context.Context, status models.JobStatus) ([]*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Job, 0)

	for _, job := range r.jobs {
		if job.Status == status {
			copied := *job
			matched = append(matched, &copied)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *Repository) UpdateJobProgress(_ context.Context, jobID string, progress *models.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %q", persistence.ErrJobNotFound, jobID)
	}

	if progress == nil {
		job.Progress = nil

		return nil
	}

	copied := *progress
	job.Progress = &copied

	return nil
}

func (r *Repository) MarkWebhookPermanentlyFailed(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %q", persistence.ErrJobNotFound, jobID)
	}

	job.WebhookPermanentlyFailed = true

	return nil
}

func (r *Repository) RecordWebhookAttempt(_ context.Context, attempt *models.WebhookAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *attempt
	r.attempts[attempt.JobID] = append(r.attempts[attempt.JobID], &copied)

	return nil
}

func (r *Repository) WebhookAttempts(_ context.Context, jobID string) ([]*models.WebhookAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attempts := make([]*models.WebhookAttempt, 0, len(r.attempts[jobID]))

	for _, attempt := range r.attempts[jobID] {
		copied := *attempt
		attempts = append(attempts, &copied)
	}

	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].AttemptNumber < attempts[j].AttemptNumber
	})

	return attempts, nil
}

func (r *Repository) RecordProviderUsage(_ context.Context, jobID string, call *models.ProviderCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *call
	r.usage[jobID] = append(r.usage[jobID], &copied)

	return nil
}

// ProviderUsage returns recorded calls for a job. Test helper; not part of
// the Repository interface.
func (r *Repository) ProviderUsage(jobID string) []*models.ProviderCall {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*models.ProviderCall(nil), r.usage[jobID]...)
}

func (r *Repository) GetCacheEntry(_ context.Context, service, operation, key string) (*models.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[cacheKey{service, operation, key}]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}

	copied := *entry

	return &copied, nil
}

func (r *Repository) UpsertCacheEntry(_ context.Context, entry *models.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *entry
	r.cache[cacheKey{entry.ServiceName, entry.Operation, entry.CacheKey}] = &copied

	return nil
}

func (r *Repository) RecordCacheHit(_ context.Context, service, operation, key string, accessedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[cacheKey{service, operation, key}]
	if !ok {
		return nil
	}

	entry.HitCount++
	entry.LastAccessedAt = &accessedAt

	return nil
}

func (r *Repository) DeleteExpiredCacheEntries(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64

	for key, entry := range r.cache {
		if now.After(entry.ExpiresAt) {
			delete(r.cache, key)

			removed++
		}
	}

	return removed, nil
}

func (r *Repository) HealthCheck(context.Context) error { return nil }

func (r *Repository) Close(context.Context) error { return nil }
