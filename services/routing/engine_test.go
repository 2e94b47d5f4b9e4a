package routing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testDefinitions() []models.ModelDefinition {
	return []models.ModelDefinition{
		{
			Provider:         "openai",
			ModelID:          "gpt-4o-mini",
			InputCostPer1K:   dec("0.00015"),
			OutputCostPer1K:  dec("0.0006"),
			MaxContextTokens: 128000,
			Capabilities:     []string{"chat", "json_mode"},
			PerformanceRank:  3,
			Active:           true,
		},
		{
			Provider:         "openai",
			ModelID:          "gpt-4o",
			InputCostPer1K:   dec("0.0025"),
			OutputCostPer1K:  dec("0.01"),
			MaxContextTokens: 128000,
			Capabilities:     []string{"chat", "json_mode", "vision"},
			PerformanceRank:  1,
			Active:           true,
		},
		{
			Provider:         "anthropic",
			ModelID:          "claude-sonnet",
			InputCostPer1K:   dec("0.003"),
			OutputCostPer1K:  dec("0.015"),
			MaxContextTokens: 200000,
			Capabilities:     []string{"chat", "vision"},
			PerformanceRank:  2,
			Active:           true,
		},
		{
			Provider:        "cohere",
			ModelID:         "command-r",
			InputCostPer1K:  dec("0.00015"),
			OutputCostPer1K: dec("0.0006"),
			// Tiny window so context-fit filtering is observable.
			MaxContextTokens: 100,
			Capabilities:     []string{"chat"},
			PerformanceRank:  4,
			Active:           true,
		},
		{
			Provider:        "openai",
			ModelID:         "gpt-3.5-retired",
			InputCostPer1K:  dec("0.0005"),
			OutputCostPer1K: dec("0.0015"),
			Capabilities:    []string{"chat"},
			Active:          false,
		},
	}
}

func newTestEngine(cfg Config) *Engine {
	return NewEngine(testDefinitions(), cfg, zap.NewNop())
}

func chatRequest(prompt string) *models.GenerationRequest {
	req := models.NewGenerationRequest(prompt, "alice", "acme", "chat")
	req.Capabilities = []string{"chat"}
	req.MaxTokens = 100
	return req
}

func modelIDs(candidates []models.Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ModelID)
	}
	return ids
}

func TestEngine_CostOptimizedOrdering(t *testing.T) {
	e := newTestEngine(Config{ProviderPriority: []string{"openai", "anthropic", "cohere"}})

	decision, err := e.SelectCandidates(chatRequest("hello world"), models.StrategyCostOptimized)
	require.NoError(t, err)

	// gpt-4o-mini and command-r tie on cost; provider priority breaks the
	// tie. The inactive model never appears.
	assert.Equal(t, []string{"gpt-4o-mini", "command-r", "gpt-4o", "claude-sonnet"}, modelIDs(decision.Candidates))
}

func TestEngine_PerformanceOptimizedOrdering(t *testing.T) {
	e := newTestEngine(Config{})

	decision, err := e.SelectCandidates(chatRequest("hello world"), models.StrategyPerformanceOptimized)
	require.NoError(t, err)

	assert.Equal(t, []string{"gpt-4o", "claude-sonnet", "gpt-4o-mini", "command-r"}, modelIDs(decision.Candidates))
}

func TestEngine_CapabilityFiltering(t *testing.T) {
	e := newTestEngine(Config{})

	req := chatRequest("describe the image")
	req.Capabilities = []string{"chat", "vision"}

	decision, err := e.SelectCandidates(req, models.StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "claude-sonnet"}, modelIDs(decision.Candidates))
}

func TestEngine_NoCapableModels(t *testing.T) {
	e := newTestEngine(Config{})

	req := chatRequest("hello")
	req.Capabilities = []string{"tool_use"}

	_, err := e.SelectCandidates(req, models.StrategyCostOptimized)
	assert.ErrorIs(t, err, services.ErrNoEligibleModels)
}

func TestEngine_ContextWindowFiltering(t *testing.T) {
	e := newTestEngine(Config{})

	// ~250 prompt tokens plus 100 completion exceeds command-r's window.
	longPrompt := make([]byte, 1000)
	for i := range longPrompt {
		longPrompt[i] = 'a'
	}
	decision, err := e.SelectCandidates(chatRequest(string(longPrompt)), models.StrategyCostOptimized)
	require.NoError(t, err)
	assert.NotContains(t, modelIDs(decision.Candidates), "command-r")
}

func TestEngine_PromptTooLongForEveryModel(t *testing.T) {
	defs := []models.ModelDefinition{{
		Provider:         "openai",
		ModelID:          "tiny",
		MaxContextTokens: 10,
		Active:           true,
	}}
	e := NewEngine(defs, Config{}, zap.NewNop())

	req := models.NewGenerationRequest("this prompt is clearly much longer than ten tokens in total", "alice", "acme", "")
	req.MaxTokens = 5

	_, err := e.SelectCandidates(req, models.StrategyCostOptimized)
	assert.ErrorIs(t, err, services.ErrPromptTooLong)
}

func TestEngine_DefaultStrategyApplied(t *testing.T) {
	e := newTestEngine(Config{DefaultStrategy: models.StrategyPerformanceOptimized})

	decision, err := e.SelectCandidates(chatRequest("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyPerformanceOptimized, decision.Strategy)
	assert.Equal(t, "gpt-4o", decision.Candidates[0].ModelID)
}

func TestEngine_ABTestPinsVariant(t *testing.T) {
	cfg := Config{
		ABTests: []ABTest{{
			Name:     "mini-vs-sonnet",
			TaskType: "chat",
			Variants: []ABVariant{
				{Name: "control", Model: "gpt-4o-mini", Percent: 50},
				{Name: "treatment", Model: "claude-sonnet", Percent: 50},
			},
		}},
	}
	e := newTestEngine(cfg)

	req := chatRequest("hello")
	decision, err := e.SelectCandidates(req, models.StrategyABTest)
	require.NoError(t, err)
	require.NotEmpty(t, decision.Variant)

	// The same user gets the same variant on every call.
	for i := 0; i < 5; i++ {
		again, err := e.SelectCandidates(req, models.StrategyABTest)
		require.NoError(t, err)
		assert.Equal(t, decision.Variant, again.Variant)
		assert.Equal(t, decision.Candidates[0].ModelID, again.Candidates[0].ModelID)
	}

	// Fallback candidates survive behind the pinned variant.
	assert.Len(t, decision.Candidates, 4)
}

func TestEngine_ABTestVariantMatchesBucket(t *testing.T) {
	cfg := Config{
		ABTests: []ABTest{{
			Name: "split",
			Variants: []ABVariant{
				{Name: "control", Model: "gpt-4o-mini", Percent: 50},
				{Name: "treatment", Model: "claude-sonnet", Percent: 50},
			},
		}},
	}
	e := newTestEngine(cfg)

	req := chatRequest("hello")
	decision, err := e.SelectCandidates(req, models.StrategyABTest)
	require.NoError(t, err)

	want := "split:control"
	if VariantBucket(req.UserID) >= 50 {
		want = "split:treatment"
	}
	assert.Equal(t, want, decision.Variant)
}

func TestEngine_ABTestDegradesWithoutMatch(t *testing.T) {
	cfg := Config{
		ProviderPriority: []string{"openai", "anthropic", "cohere"},
		ABTests: []ABTest{{
			Name:     "summaries-only",
			TaskType: "summary",
			Variants: []ABVariant{{Name: "control", Model: "gpt-4o-mini", Percent: 100}},
		}},
	}
	e := newTestEngine(cfg)

	decision, err := e.SelectCandidates(chatRequest("hello"), models.StrategyABTest)
	require.NoError(t, err)
	assert.Empty(t, decision.Variant)
	assert.Equal(t, "gpt-4o-mini", decision.Candidates[0].ModelID, "degrades to cost ordering")
}

func TestEngine_ReplaceDefinitions(t *testing.T) {
	e := newTestEngine(Config{})

	e.ReplaceDefinitions([]models.ModelDefinition{{
		Provider:     "openai",
		ModelID:      "gpt-5",
		Capabilities: []string{"chat"},
		Active:       true,
	}})

	decision, err := e.SelectCandidates(chatRequest("hello"), models.StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-5"}, modelIDs(decision.Candidates))
}

func TestVariantBucket_Range(t *testing.T) {
	for _, id := range []string{"alice", "bob", "carol", "", "long-user-identifier"} {
		bucket := VariantBucket(id)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 100)
	}
	assert.Equal(t, VariantBucket("alice"), VariantBucket("alice"))
}
