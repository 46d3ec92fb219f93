package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/persistence"
)

func TestJobRoundTrip(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	job := models.NewJob("places-report", map[string]any{"city": "Seattle"})
	require.NoError(t, repo.SaveJob(ctx, job))

	loaded, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.WorkflowName, loaded.WorkflowName)

	// The stored job is a copy; mutating the loaded one is invisible.
	loaded.Status = models.JobStatusFailed
	again, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, again.Status)

	_, err = repo.JobByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrJobNotFound)
}

func TestUpdateJobProgress(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	job := models.NewJob("city-guide", nil)
	require.NoError(t, repo.SaveJob(ctx, job))

	snapshot := &models.Progress{CurrentStep: "fetch_weather", StepsCompleted: 2, TotalSteps: 4}
	require.NoError(t, repo.UpdateJobProgress(ctx, job.ID, snapshot))

	loaded, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Progress)
	assert.Equal(t, "fetch_weather", loaded.Progress.CurrentStep)
	assert.Equal(t, 2, loaded.Progress.StepsCompleted)
	assert.Equal(t, 4, loaded.Progress.TotalSteps)

	require.NoError(t, repo.UpdateJobProgress(ctx, job.ID, nil))

	loaded, err = repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.Progress)

	err = repo.UpdateJobProgress(ctx, "missing", snapshot)
	require.ErrorIs(t, err, persistence.ErrJobNotFound)
}

func TestJobsByStatusOrdering(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	older := models.NewJob("wf", nil)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := models.NewJob("wf", nil)

	require.NoError(t, repo.SaveJob(ctx, newer))
	require.NoError(t, repo.SaveJob(ctx, older))

	pending, err := repo.JobsByStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
}

func TestCacheEntryExpiryAndSweep(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	expired := &models.CacheEntry{
		ServiceName:  "weatherapi",
		Operation:    "current",
		CacheKey:     "k1",
		ResponseData: map[string]any{"temp_c": 18.5},
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	live := &models.CacheEntry{
		ServiceName:  "weatherapi",
		Operation:    "current",
		CacheKey:     "k2",
		ResponseData: map[string]any{"temp_c": 20.0},
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	require.NoError(t, repo.UpsertCacheEntry(ctx, expired))
	require.NoError(t, repo.UpsertCacheEntry(ctx, live))

	entry, err := repo.GetCacheEntry(ctx, "weatherapi", "current", "k1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	removed, err := repo.DeleteExpiredCacheEntries(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entry, err = repo.GetCacheEntry(ctx, "weatherapi", "current", "k2")
	require.NoError(t, err)
	require.NotNil(t, entry)

	require.NoError(t, repo.RecordCacheHit(ctx, "weatherapi", "current", "k2", time.Now()))

	entry, err = repo.GetCacheEntry(ctx, "weatherapi", "current", "k2")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.HitCount)
}

func TestWebhookAttemptsOrdered(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	job := models.NewJob("wf", nil)
	require.NoError(t, repo.SaveJob(ctx, job))

	require.NoError(t, repo.RecordWebhookAttempt(ctx, &models.WebhookAttempt{ID: "a2", JobID: job.ID, AttemptNumber: 2}))
	require.NoError(t, repo.RecordWebhookAttempt(ctx, &models.WebhookAttempt{ID: "a1", JobID: job.ID, AttemptNumber: 1}))

	attempts, err := repo.WebhookAttempts(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].AttemptNumber)

	require.NoError(t, repo.MarkWebhookPermanentlyFailed(ctx, job.ID))

	loaded, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, loaded.WebhookPermanentlyFailed)
}
