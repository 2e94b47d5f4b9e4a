package models

import "github.com/shopspring/decimal"

// Strategy selects how the routing engine orders candidates.
type Strategy string

const (
	// StrategyCostOptimized orders candidates ascending by estimated cost.
	StrategyCostOptimized Strategy = "cost_optimized"

	// StrategyPerformanceOptimized orders candidates by configured rank.
	StrategyPerformanceOptimized Strategy = "performance_optimized"

	// StrategyABTest pins the requester to a deterministic variant bucket.
	StrategyABTest Strategy = "ab_test"
)

// Candidate is one (provider, model) pair the gateway may try for a request.
type Candidate struct {
	Provider      string          `json:"provider"`
	ModelID       string          `json:"model_id"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Definition    ModelDefinition `json:"-"`
}

// RoutingDecision is the ordered candidate list produced for a single
// request. It is created per request and discarded after use except for
// logging.
type RoutingDecision struct {
	Strategy   Strategy    `json:"strategy"`
	Variant    string      `json:"variant,omitempty"`
	Candidates []Candidate `json:"candidates"`
}
