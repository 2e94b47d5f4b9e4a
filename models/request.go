package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerationRequest is the immutable input to the gateway pipeline. It is
// created once per inbound call and never mutated afterwards; candidate
// fallback and retries all work from the same request value.
type GenerationRequest struct {
	ID           uuid.UUID `json:"id"`
	Prompt       string    `json:"prompt"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	TaskType     string    `json:"task_type"`
	MaxTokens    int       `json:"max_tokens"`
	Temperature  float64   `json:"temperature"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Stream       bool      `json:"stream"`
	ReceivedAt   time.Time `json:"received_at"`
}

// NewGenerationRequest assigns the request id and receive timestamp.
func NewGenerationRequest(prompt, userID, tenantID, taskType string) *GenerationRequest {
	return &GenerationRequest{
		ID:         uuid.New(),
		Prompt:     prompt,
		UserID:     userID,
		TenantID:   tenantID,
		TaskType:   taskType,
		ReceivedAt: time.Now().UTC(),
	}
}

// EstimateTokens approximates the token count of a text using the 4 chars per
// token heuristic. Used for pre-call cost estimation and context-window
// filtering only; billed token counts always come from the provider response.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// GenerationResult is the normalized outcome of a completed generation,
// independent of which vendor produced it.
type GenerationResult struct {
	RequestID    uuid.UUID       `json:"request_id"`
	Content      string          `json:"content"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Latency      time.Duration   `json:"latency"`
	Cost         decimal.Decimal `json:"cost"`
	CacheHit     bool            `json:"cache_hit"`
}
