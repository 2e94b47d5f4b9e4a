package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetRepository persists period spend totals to PostgreSQL.
type BudgetRepository struct {
	db *sql.DB
}

// NewBudgetRepository creates a PostgreSQL-backed budget repository.
func NewBudgetRepository(db *sql.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// UpsertSpend adds amount to the running total for (scopeKey, periodKey).
func (r *BudgetRepository) UpsertSpend(ctx context.Context, scopeKey, periodKey string, amount decimal.Decimal) error {
	query := `
		INSERT INTO budget_spend (scope_key, period_key, total_cost, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope_key, period_key)
		DO UPDATE SET
			total_cost = budget_spend.total_cost + EXCLUDED.total_cost,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, scopeKey, periodKey, amount.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert budget spend: %w", err)
	}
	return nil
}

// GetPeriodSpend returns the running total, zero when no row exists.
func (r *BudgetRepository) GetPeriodSpend(ctx context.Context, scopeKey, periodKey string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(total_cost, 0)
		FROM budget_spend
		WHERE scope_key = $1 AND period_key = $2
	`

	var total string
	err := r.db.QueryRowContext(ctx, query, scopeKey, periodKey).Scan(&total)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query budget spend: %w", err)
	}

	spent, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse budget spend %q: %w", total, err)
	}
	return spent, nil
}
