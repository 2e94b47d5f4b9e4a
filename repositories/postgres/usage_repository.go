package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voyagerhq/llm-gateway/models"
)

// UsageRepository persists usage records to PostgreSQL.
type UsageRepository struct {
	db *sql.DB
}

// NewUsageRepository creates a PostgreSQL-backed usage repository.
func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Insert writes one append-only usage record.
func (r *UsageRepository) Insert(ctx context.Context, rec *models.UsageRecord) error {
	query := `
		INSERT INTO usage_records
		(id, request_id, tenant_id, user_id, task_type, provider, model,
		 input_tokens, output_tokens, cost, latency_ms, cache_hit, success, error_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RequestID, rec.TenantID, rec.UserID, rec.TaskType,
		rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens,
		rec.Cost.String(), rec.LatencyMs, rec.CacheHit, rec.Success,
		rec.ErrorCode, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}
