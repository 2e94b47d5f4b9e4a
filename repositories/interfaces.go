package repositories

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/voyagerhq/llm-gateway/models"
)

// UsageRepository persists append-only usage records. Records are write-once;
// there is deliberately no update or delete operation.
type UsageRepository interface {
	Insert(ctx context.Context, rec *models.UsageRecord) error
}

// BudgetRepository persists committed spend per scope and rolling window so
// ledgers survive restarts. The in-process ledger remains the enforcement
// point; this store is the durable shadow.
type BudgetRepository interface {
	// UpsertSpend adds amount to the (scopeKey, periodKey) running total.
	UpsertSpend(ctx context.Context, scopeKey, periodKey string, amount decimal.Decimal) error

	// GetPeriodSpend returns the running total for a scope and period,
	// zero when absent. Used to hydrate ledgers at startup.
	GetPeriodSpend(ctx context.Context, scopeKey, periodKey string) (decimal.Decimal, error)
}
