package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tirandagan/llmflow/pkg/models"
)

// WebhookAttemptRepository handles the immutable delivery attempt log.
type WebhookAttemptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWebhookAttemptRepository creates a new attempt log repository.
func NewWebhookAttemptRepository(db *sql.DB, logger *slog.Logger) *WebhookAttemptRepository {
	return &WebhookAttemptRepository{db: db, logger: logger}
}

// Record appends one attempt. Attempts are never updated or deleted.
func (r *WebhookAttemptRepository) Record(ctx context.Context, attempt *models.WebhookAttempt) error {
	query := `
		INSERT INTO webhook_attempts (
			id, job_id, attempt_number, webhook_url, payload,
			http_status, response_body, error_message, duration_ms,
			attempted_at, next_retry_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var payload []byte
	if len(attempt.Payload) > 0 {
		payload = attempt.Payload
	}

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.JobID,
		attempt.AttemptNumber,
		attempt.WebhookURL,
		payload,
		nullInt(attempt.HTTPStatus),
		nullString(attempt.ResponseBody),
		nullString(attempt.ErrorMessage),
		attempt.DurationMS,
		attempt.AttemptedAt,
		attempt.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook attempt: %w", err)
	}

	return nil
}

// ByJobID returns a job's attempts in attempt order.
func (r *WebhookAttemptRepository) ByJobID(ctx context.Context, jobID string) ([]*models.WebhookAttempt, error) {
	query := `
		SELECT
			id
		  , job_id
		  , attempt_number
		  , webhook_url
		  , payload
		  , http_status
		  , response_body
		  , error_message
		  , duration_ms
		  , attempted_at
		  , next_retry_at
		FROM webhook_attempts
		WHERE job_id = $1
		ORDER BY attempt_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook attempts: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	attempts := make([]*models.WebhookAttempt, 0)

	for rows.Next() {
		var (
			attempt      models.WebhookAttempt
			httpStatus   sql.NullInt64
			responseBody sql.NullString
			errorMessage sql.NullString
			nextRetryAt  sql.NullTime
		)

		err := rows.Scan(
			&attempt.ID,
			&attempt.JobID,
			&attempt.AttemptNumber,
			&attempt.WebhookURL,
			&attempt.Payload,
			&httpStatus,
			&responseBody,
			&errorMessage,
			&attempt.DurationMS,
			&attempt.AttemptedAt,
			&nextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook attempt: %w", err)
		}

		attempt.HTTPStatus = int(httpStatus.Int64)
		attempt.ResponseBody = responseBody.String
		attempt.ErrorMessage = errorMessage.String

		if nextRetryAt.Valid {
			attempt.NextRetryAt = &nextRetryAt.Time
		}

		attempts = append(attempts, &attempt)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating webhook attempts: %w", err)
	}

	return attempts, nil
}

func nullInt(value int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(value), Valid: value != 0}
}
