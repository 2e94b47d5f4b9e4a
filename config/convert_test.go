package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/services/breaker"
	"github.com/voyagerhq/llm-gateway/services/gateway"
)

func TestModelDefinitions(t *testing.T) {
	inactive := false
	cfg := &Config{
		Models: []ModelConfig{
			{
				Provider:         "openai",
				ModelID:          "gpt-4o-mini",
				InputCostPer1K:   "0.00015",
				OutputCostPer1K:  "0.0006",
				MaxContextTokens: 128000,
				Capabilities:     []string{"json_mode"},
				PerformanceRank:  3,
			},
			{Provider: "openai", ModelID: "gpt-3.5-retired", Active: &inactive},
		},
	}

	defs, err := cfg.ModelDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "gpt-4o-mini", defs[0].ModelID)
	assert.True(t, defs[0].InputCostPer1K.Equal(decimal.RequireFromString("0.00015")))
	assert.True(t, defs[0].Active)
	assert.True(t, defs[1].InputCostPer1K.IsZero(), "missing cost defaults to zero")
	assert.False(t, defs[1].Active)
}

func TestBudgetManagerConfig(t *testing.T) {
	cfg := &Config{
		Budget: BudgetConfig{
			Global: LimitsConfig{DailyLimit: "100", MonthlyLimit: "2000", AlertThresholds: []float64{0.5}},
			Tenants: map[string]LimitsConfig{
				"acme": {DailyLimit: "25", AutoDisableAt: 0.9},
			},
		},
	}

	budgetCfg, err := cfg.BudgetManagerConfig()
	require.NoError(t, err)

	assert.True(t, budgetCfg.Global.DailyLimit.Equal(decimal.RequireFromString("100")))
	assert.True(t, budgetCfg.Global.MonthlyLimit.Equal(decimal.RequireFromString("2000")))
	assert.True(t, budgetCfg.Tenants["acme"].DailyLimit.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, 0.9, budgetCfg.Tenants["acme"].AutoDisableAt)
	assert.True(t, budgetCfg.TenantDefault.DailyLimit.IsZero(), "unset means unlimited")
}

func TestBreakerSetConfig(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, breaker.DefaultConfig(), cfg.BreakerSetConfig(), "zero fields take defaults")

	cfg.Breaker = BreakerConfig{
		FailureThreshold: 10,
		RecoveryTimeout:  Duration(time.Minute),
		HalfOpenMaxCalls: 3,
	}
	got := cfg.BreakerSetConfig()
	assert.Equal(t, 10, got.FailureThreshold)
	assert.Equal(t, time.Minute, got.RecoveryTimeout)
	assert.Equal(t, 3, got.HalfOpenMaxCalls)
}

func TestGatewayEngineConfig(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, gateway.DefaultConfig(), cfg.GatewayEngineConfig())

	cfg.Retry = RetryConfig{
		MaxAttempts:    5,
		BaseDelay:      Duration(time.Second),
		Multiplier:     3,
		MaxDelay:       Duration(10 * time.Second),
		AttemptTimeout: Duration(20 * time.Second),
	}
	cfg.Cache.TTL = Duration(time.Minute)

	got := cfg.GatewayEngineConfig()
	assert.Equal(t, 5, got.Retry.MaxAttempts)
	assert.Equal(t, time.Second, got.Retry.BaseDelay)
	assert.Equal(t, 3.0, got.Retry.Multiplier)
	assert.Equal(t, 10*time.Second, got.Retry.MaxDelay)
	assert.Equal(t, 20*time.Second, got.AttemptTimeout)
	assert.Equal(t, time.Minute, got.CacheTTL)
}
