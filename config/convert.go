package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/breaker"
	"github.com/voyagerhq/llm-gateway/services/budget"
	"github.com/voyagerhq/llm-gateway/services/gateway"
	"github.com/voyagerhq/llm-gateway/services/routing"
	"github.com/voyagerhq/llm-gateway/services/usage"
)

// parseDecimal parses a decimal string, substituting fallback when empty.
func parseDecimal(s, fallback string) (decimal.Decimal, error) {
	if s == "" {
		s = fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// ModelDefinitions converts the configured models into routing definitions.
// Validate has already vetted the decimal fields.
func (c *Config) ModelDefinitions() ([]models.ModelDefinition, error) {
	defs := make([]models.ModelDefinition, 0, len(c.Models))
	for _, m := range c.Models {
		inCost, err := parseDecimal(m.InputCostPer1K, "0")
		if err != nil {
			return nil, fmt.Errorf("model %s/%s: %w", m.Provider, m.ModelID, err)
		}
		outCost, err := parseDecimal(m.OutputCostPer1K, "0")
		if err != nil {
			return nil, fmt.Errorf("model %s/%s: %w", m.Provider, m.ModelID, err)
		}
		defs = append(defs, models.ModelDefinition{
			Provider:         m.Provider,
			ModelID:          m.ModelID,
			InputCostPer1K:   inCost,
			OutputCostPer1K:  outCost,
			MaxContextTokens: m.MaxContextTokens,
			Capabilities:     m.Capabilities,
			PerformanceRank:  m.PerformanceRank,
			Active:           m.IsActive(),
		})
	}
	return defs, nil
}

// RoutingEngineConfig converts the routing section.
func (c *Config) RoutingEngineConfig() routing.Config {
	tests := make([]routing.ABTest, 0, len(c.Routing.ABTests))
	for _, t := range c.Routing.ABTests {
		variants := make([]routing.ABVariant, 0, len(t.Variants))
		for _, v := range t.Variants {
			variants = append(variants, routing.ABVariant{
				Name:    v.Name,
				Model:   v.Model,
				Percent: v.Percent,
			})
		}
		tests = append(tests, routing.ABTest{
			Name:     t.Name,
			TaskType: t.TaskType,
			Variants: variants,
		})
	}
	return routing.Config{
		DefaultStrategy:  models.Strategy(c.Routing.DefaultStrategy),
		ProviderPriority: c.Routing.ProviderPriority,
		ABTests:          tests,
	}
}

// BudgetManagerConfig converts the budget section.
func (c *Config) BudgetManagerConfig() (budget.Config, error) {
	global, err := convertLimits(c.Budget.Global)
	if err != nil {
		return budget.Config{}, fmt.Errorf("budget.global: %w", err)
	}
	tenantDefault, err := convertLimits(c.Budget.TenantDefault)
	if err != nil {
		return budget.Config{}, fmt.Errorf("budget.tenant_default: %w", err)
	}

	tenants := make(map[string]budget.Limits, len(c.Budget.Tenants))
	for id, l := range c.Budget.Tenants {
		limits, err := convertLimits(l)
		if err != nil {
			return budget.Config{}, fmt.Errorf("budget.tenants.%s: %w", id, err)
		}
		tenants[id] = limits
	}

	users := make(map[string]budget.Limits, len(c.Budget.Users))
	for id, l := range c.Budget.Users {
		limits, err := convertLimits(l)
		if err != nil {
			return budget.Config{}, fmt.Errorf("budget.users.%s: %w", id, err)
		}
		users[id] = limits
	}

	return budget.Config{
		Global:        global,
		TenantDefault: tenantDefault,
		Tenants:       tenants,
		Users:         users,
	}, nil
}

func convertLimits(l LimitsConfig) (budget.Limits, error) {
	daily, err := parseDecimal(l.DailyLimit, "0")
	if err != nil {
		return budget.Limits{}, err
	}
	monthly, err := parseDecimal(l.MonthlyLimit, "0")
	if err != nil {
		return budget.Limits{}, err
	}
	return budget.Limits{
		DailyLimit:      daily,
		MonthlyLimit:    monthly,
		AlertThresholds: l.AlertThresholds,
		AutoDisableAt:   l.AutoDisableAt,
	}, nil
}

// BreakerSetConfig converts the breaker section, filling zero fields with
// the package defaults.
func (c *Config) BreakerSetConfig() breaker.Config {
	cfg := breaker.DefaultConfig()
	if c.Breaker.FailureThreshold > 0 {
		cfg.FailureThreshold = c.Breaker.FailureThreshold
	}
	if c.Breaker.RecoveryTimeout > 0 {
		cfg.RecoveryTimeout = c.Breaker.RecoveryTimeout.Std()
	}
	if c.Breaker.HalfOpenMaxCalls > 0 {
		cfg.HalfOpenMaxCalls = c.Breaker.HalfOpenMaxCalls
	}
	return cfg
}

// GatewayEngineConfig converts the retry and cache sections into the engine
// configuration.
func (c *Config) GatewayEngineConfig() gateway.Config {
	cfg := gateway.DefaultConfig()
	if c.Retry.AttemptTimeout > 0 {
		cfg.AttemptTimeout = c.Retry.AttemptTimeout.Std()
	}
	if c.Cache.TTL > 0 {
		cfg.CacheTTL = c.Cache.TTL.Std()
	}
	if c.Retry.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay > 0 {
		cfg.Retry.BaseDelay = c.Retry.BaseDelay.Std()
	}
	if c.Retry.Multiplier >= 1 {
		cfg.Retry.Multiplier = c.Retry.Multiplier
	}
	if c.Retry.MaxDelay > 0 {
		cfg.Retry.MaxDelay = c.Retry.MaxDelay.Std()
	}
	return cfg
}

// UsageRecorderConfig converts the usage section.
func (c *Config) UsageRecorderConfig() usage.Config {
	cfg := usage.DefaultConfig()
	if c.Usage.BufferSize > 0 {
		cfg.BufferSize = c.Usage.BufferSize
	}
	if c.Usage.WorkerCount > 0 {
		cfg.WorkerCount = c.Usage.WorkerCount
	}
	return cfg
}
