package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/persistence"
)

// JobRepository handles job-related database operations.
type JobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sql.DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

const jobColumns = `
	id
  , task_id
  , workflow_name
  , user_id
  , status
  , input_data
  , result_data
  , error_message
  , retry_count
  , debug_mode
  , webhook_url
  , webhook_secret
  , webhook_permanently_failed
  , progress
  , duration_ms
  , created_at
  , started_at
  , completed_at
`

// Save inserts or fully replaces the job record.
func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	inputData, err := json.Marshal(job.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data: %w", err)
	}

	var resultData []byte

	if job.ResultData != nil {
		resultData, err = json.Marshal(job.ResultData)
		if err != nil {
			return fmt.Errorf("failed to marshal result data: %w", err)
		}
	}

	var progress []byte

	if job.Progress != nil {
		progress, err = json.Marshal(job.Progress)
		if err != nil {
			return fmt.Errorf("failed to marshal progress: %w", err)
		}
	}

	query := `
		INSERT INTO workflow_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			task_id = EXCLUDED.task_id,
			status = EXCLUDED.status,
			result_data = EXCLUDED.result_data,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			webhook_permanently_failed = EXCLUDED.webhook_permanently_failed,
			progress = EXCLUDED.progress,
			duration_ms = EXCLUDED.duration_ms,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		nullString(job.TaskID),
		job.WorkflowName,
		nullString(job.UserID),
		string(job.Status),
		inputData,
		resultData,
		nullString(job.ErrorMessage),
		job.RetryCount,
		job.DebugMode,
		nullString(job.WebhookURL),
		nullString(job.WebhookSecret),
		job.WebhookPermanentlyFailed,
		progress,
		job.DurationMS,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

// GetByID returns the job or persistence.ErrJobNotFound.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM workflow_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", persistence.ErrJobNotFound, id)
		}

		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	return job, nil
}

// GetByStatus returns jobs in the given state, oldest first.
func (r *JobRepository) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM workflow_jobs WHERE status = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// UpdateProgress writes the polling snapshot for a running job. A nil
// progress clears the column.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, progress *models.Progress) error {
	var payload []byte

	if progress != nil {
		data, err := json.Marshal(progress)
		if err != nil {
			return fmt.Errorf("failed to marshal progress: %w", err)
		}

		payload = data
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_jobs SET progress = $2 WHERE id = $1`, jobID, payload)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %q", persistence.ErrJobNotFound, jobID)
	}

	return nil
}

// MarkWebhookPermanentlyFailed flags the job after webhook retry exhaustion.
func (r *JobRepository) MarkWebhookPermanentlyFailed(ctx context.Context, jobID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_jobs SET webhook_permanently_failed = true WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to flag webhook failure: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %q", persistence.ErrJobNotFound, jobID)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job           models.Job
		taskID        sql.NullString
		userID        sql.NullString
		status        string
		inputData     []byte
		resultData    []byte
		progress      []byte
		errorMessage  sql.NullString
		webhookURL    sql.NullString
		webhookSecret sql.NullString
		durationMS    sql.NullInt64
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&taskID,
		&job.WorkflowName,
		&userID,
		&status,
		&inputData,
		&resultData,
		&errorMessage,
		&job.RetryCount,
		&job.DebugMode,
		&webhookURL,
		&webhookSecret,
		&job.WebhookPermanentlyFailed,
		&progress,
		&durationMS,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.TaskID = taskID.String
	job.UserID = userID.String
	job.Status = models.JobStatus(status)
	job.ErrorMessage = errorMessage.String
	job.WebhookURL = webhookURL.String
	job.WebhookSecret = webhookSecret.String
	job.DurationMS = durationMS.Int64

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}

	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	if len(inputData) > 0 {
		if err := json.Unmarshal(inputData, &job.InputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
		}
	}

	if len(resultData) > 0 {
		if err := json.Unmarshal(resultData, &job.ResultData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result data: %w", err)
		}
	}

	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
		}
	}

	return &job, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
