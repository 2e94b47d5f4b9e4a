package repositories

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/voyagerhq/llm-gateway/models"
)

// MemoryUsageRepository keeps usage records in memory. Used when the gateway
// runs without a database and by tests.
type MemoryUsageRepository struct {
	mu      sync.Mutex
	records []*models.UsageRecord
}

// NewMemoryUsageRepository creates an empty in-memory usage store.
func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{}
}

// Insert implements UsageRepository.
func (r *MemoryUsageRepository) Insert(_ context.Context, rec *models.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (r *MemoryUsageRepository) Records() []*models.UsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.UsageRecord, len(r.records))
	copy(out, r.records)
	return out
}

// MemoryBudgetRepository keeps period spend totals in memory.
type MemoryBudgetRepository struct {
	mu     sync.Mutex
	totals map[string]decimal.Decimal
}

// NewMemoryBudgetRepository creates an empty in-memory budget store.
func NewMemoryBudgetRepository() *MemoryBudgetRepository {
	return &MemoryBudgetRepository{totals: make(map[string]decimal.Decimal)}
}

func budgetKey(scopeKey, periodKey string) string {
	return scopeKey + "|" + periodKey
}

// UpsertSpend implements BudgetRepository.
func (r *MemoryBudgetRepository) UpsertSpend(_ context.Context, scopeKey, periodKey string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := budgetKey(scopeKey, periodKey)
	r.totals[key] = r.totals[key].Add(amount)
	return nil
}

// GetPeriodSpend implements BudgetRepository.
func (r *MemoryBudgetRepository) GetPeriodSpend(_ context.Context, scopeKey, periodKey string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[budgetKey(scopeKey, periodKey)], nil
}
