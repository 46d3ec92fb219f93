package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tirandagan/llmflow/pkg/models"
)

// UsageRepository records provider calls for cost accounting.
type UsageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewUsageRepository creates a new usage repository.
func NewUsageRepository(db *sql.DB, logger *slog.Logger) *UsageRepository {
	return &UsageRepository{db: db, logger: logger}
}

// Record appends one provider call.
func (r *UsageRepository) Record(ctx context.Context, jobID string, call *models.ProviderCall) error {
	var metadata []byte

	if call.Metadata != nil {
		encoded, err := json.Marshal(call.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal usage metadata: %w", err)
		}

		metadata = encoded
	}

	query := `
		INSERT INTO provider_usage (
			job_id, provider, model, input_tokens, output_tokens,
			total_tokens, cost_usd, duration_ms, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		jobID,
		call.Provider,
		call.Model,
		call.InputTokens,
		call.OutputTokens,
		call.TotalTokens,
		call.CostUSD,
		call.DurationMS,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to record provider usage: %w", err)
	}

	return nil
}
