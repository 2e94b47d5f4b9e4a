package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageRecord is an append-only fact about one completed (or failed)
// generation attempt. Records are write-once: the recorder persists them and
// nothing mutates them afterwards. Billing reconciliation and dashboards read
// them downstream.
type UsageRecord struct {
	ID           uuid.UUID       `json:"id"`
	RequestID    uuid.UUID       `json:"request_id"`
	TenantID     string          `json:"tenant_id"`
	UserID       string          `json:"user_id"`
	TaskType     string          `json:"task_type"`
	Provider     string          `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
	LatencyMs    int64           `json:"latency_ms"`
	CacheHit     bool            `json:"cache_hit"`
	Success      bool            `json:"success"`
	ErrorCode    string          `json:"error_code,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewUsageRecord stamps id and creation time.
func NewUsageRecord(req *GenerationRequest) *UsageRecord {
	return &UsageRecord{
		ID:        uuid.New(),
		RequestID: req.ID,
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		TaskType:  req.TaskType,
		Cost:      decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
}
