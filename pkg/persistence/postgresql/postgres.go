// Package postgresql implements the persistence Repository on PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/persistence/sqlbase"
)

// Persistence implements the repository interface for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	jobs     *JobRepository
	attempts *WebhookAttemptRepository
	usage    *UsageRepository
	cache    *CacheRepository
}

// NewPersistence connects, pings, and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:       database,
		logger:   logger,
		jobs:     NewJobRepository(database, logger),
		attempts: NewWebhookAttemptRepository(database, logger),
		usage:    NewUsageRepository(database, logger),
		cache:    NewCacheRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) SaveJob(ctx context.Context, job *models.Job) error {
	return p.jobs.Save(ctx, job)
}

func (p *Persistence) JobByID(ctx context.Context, id string) (*models.Job, error) {
	return p.jobs.GetByID(ctx, id)
}

func (p *Persistence) JobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return p.jobs.GetByStatus(ctx, status)
}

func (p *Persistence) UpdateJobProgress(ctx context.Context, jobID string, progress *models.Progress) error {
	return p.jobs.UpdateProgress(ctx, jobID, progress)
}

func (p *Persistence) MarkWebhookPermanentlyFailed(ctx context.Context, jobID string) error {
	return p.jobs.MarkWebhookPermanentlyFailed(ctx, jobID)
}

func (p *Persistence) RecordWebhookAttempt(ctx context.Context, attempt *models.WebhookAttempt) error {
	return p.attempts.Record(ctx, attempt)
}

func (p *Persistence) WebhookAttempts(ctx context.Context, jobID string) ([]*models.WebhookAttempt, error) {
	return p.attempts.ByJobID(ctx, jobID)
}

func (p *Persistence) RecordProviderUsage(ctx context.Context, jobID string, call *models.ProviderCall) error {
	return p.usage.Record(ctx, jobID, call)
}

func (p *Persistence) GetCacheEntry(ctx context.Context, service, operation, key string) (*models.CacheEntry, error) {
	return p.cache.Get(ctx, service, operation, key)
}

func (p *Persistence) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	return p.cache.Upsert(ctx, entry)
}

func (p *Persistence) RecordCacheHit(ctx context.Context, service, operation, key string, accessedAt time.Time) error {
	return p.cache.RecordHit(ctx, service, operation, key, accessedAt)
}

func (p *Persistence) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	return p.cache.DeleteExpired(ctx, now)
}
