package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tirandagan/llmflow/pkg/models"
)

// CacheRepository is the persistent layer of the two-level response cache.
type CacheRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCacheRepository creates a new cache repository.
func NewCacheRepository(db *sql.DB, logger *slog.Logger) *CacheRepository {
	return &CacheRepository{db: db, logger: logger}
}

// Get returns the unexpired entry or nil on miss. Expiry filtering happens
// in the query so callers never see stale rows.
func (r *CacheRepository) Get(ctx context.Context, service, operation, key string) (*models.CacheEntry, error) {
	query := `
		SELECT
			service_name
		  , operation
		  , cache_key
		  , request_params
		  , response_data
		  , expires_at
		  , hit_count
		  , last_accessed_at
		  , created_at
		FROM response_cache
		WHERE service_name = $1 AND operation = $2 AND cache_key = $3 AND expires_at > NOW()
	`

	var (
		entry          models.CacheEntry
		requestParams  []byte
		responseData   []byte
		lastAccessedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, service, operation, key).Scan(
		&entry.ServiceName,
		&entry.Operation,
		&entry.CacheKey,
		&requestParams,
		&responseData,
		&entry.ExpiresAt,
		&entry.HitCount,
		&lastAccessedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	if lastAccessedAt.Valid {
		entry.LastAccessedAt = &lastAccessedAt.Time
	}

	if len(requestParams) > 0 {
		if err := json.Unmarshal(requestParams, &entry.RequestParams); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request params: %w", err)
		}
	}

	if err := json.Unmarshal(responseData, &entry.ResponseData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response data: %w", err)
	}

	return &entry, nil
}

// Upsert writes the entry keyed by (service, operation, cache_key).
func (r *CacheRepository) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	var requestParams []byte

	if entry.RequestParams != nil {
		encoded, err := json.Marshal(entry.RequestParams)
		if err != nil {
			return fmt.Errorf("failed to marshal request params: %w", err)
		}

		requestParams = encoded
	}

	responseData, err := json.Marshal(entry.ResponseData)
	if err != nil {
		return fmt.Errorf("failed to marshal response data: %w", err)
	}

	query := `
		INSERT INTO response_cache (
			service_name, operation, cache_key, request_params,
			response_data, expires_at, hit_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (service_name, operation, cache_key) DO UPDATE SET
			request_params = EXCLUDED.request_params,
			response_data = EXCLUDED.response_data,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ServiceName,
		entry.Operation,
		entry.CacheKey,
		requestParams,
		responseData,
		entry.ExpiresAt,
		entry.HitCount,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// RecordHit bumps the hit counter and refreshes the last access timestamp.
func (r *CacheRepository) RecordHit(ctx context.Context, service, operation, key string, accessedAt time.Time) error {
	query := `
		UPDATE response_cache
		SET hit_count = hit_count + 1, last_accessed_at = $4
		WHERE service_name = $1 AND operation = $2 AND cache_key = $3
	`

	_, err := r.db.ExecContext(ctx, query, service, operation, key, accessedAt)
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}

	return nil
}

// DeleteExpired removes entries past their expiry, returning the count.
func (r *CacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache entries: %w", err)
	}

	return removed, nil
}
