package models

import "github.com/shopspring/decimal"

// ModelDefinition describes one routable model. Definitions are loaded from
// configuration and treated as immutable snapshots: a hot reload swaps the
// whole set, it never mutates a definition an in-flight request may hold.
type ModelDefinition struct {
	Provider         string          `json:"provider"`
	ModelID          string          `json:"model_id"`
	InputCostPer1K   decimal.Decimal `json:"input_cost_per_1k"`
	OutputCostPer1K  decimal.Decimal `json:"output_cost_per_1k"`
	MaxContextTokens int             `json:"max_context_tokens"`
	Capabilities     []string        `json:"capabilities,omitempty"`
	PerformanceRank  int             `json:"performance_rank"`
	Active           bool            `json:"active"`
}

var thousand = decimal.NewFromInt(1000)

// CostFor computes the exact cost for the given token counts using decimal
// arithmetic, so repeated ledger commits cannot accumulate float error.
func (d ModelDefinition) CostFor(inputTokens, outputTokens int) decimal.Decimal {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	in := d.InputCostPer1K.Mul(decimal.NewFromInt(int64(inputTokens))).Div(thousand)
	out := d.OutputCostPer1K.Mul(decimal.NewFromInt(int64(outputTokens))).Div(thousand)
	return in.Add(out)
}

// HasCapabilities reports whether every required capability tag is present.
func (d ModelDefinition) HasCapabilities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range d.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FitsContext reports whether the estimated prompt plus the requested
// completion budget fits inside the model's context window.
func (d ModelDefinition) FitsContext(promptTokens, maxCompletionTokens int) bool {
	if d.MaxContextTokens <= 0 {
		return true
	}
	return promptTokens+maxCompletionTokens <= d.MaxContextTokens
}
