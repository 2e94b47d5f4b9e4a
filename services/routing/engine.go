package routing

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services"
	"go.uber.org/zap"
)

// defaultOutputEstimate stands in for max_tokens when the caller did not
// cap the completion, mirroring the cost estimator's assumption.
const defaultOutputEstimate = 500

// ABVariant is one arm of a traffic split.
type ABVariant struct {
	Name    string
	Model   string
	Percent int
}

// ABTest pins requesters to variants by deterministic bucket so a user sees
// a consistent arm for the lifetime of the test.
type ABTest struct {
	Name     string
	TaskType string // empty matches every task type
	Variants []ABVariant
}

// Config holds routing configuration.
type Config struct {
	DefaultStrategy  models.Strategy
	ProviderPriority []string
	ABTests          []ABTest
}

// Engine selects and orders (provider, model) candidates for a request.
// The definition set is swapped wholesale on hot reload; reads take the
// read lock only.
type Engine struct {
	mu     sync.RWMutex
	defs   []models.ModelDefinition
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates a routing engine over the given model definitions.
func NewEngine(defs []models.ModelDefinition, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = models.StrategyCostOptimized
	}
	return &Engine{defs: defs, cfg: cfg, logger: logger}
}

// ReplaceDefinitions atomically swaps the model set (hot reload).
func (e *Engine) ReplaceDefinitions(defs []models.ModelDefinition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs = defs
	e.logger.Info("model definitions replaced", zap.Int("count", len(defs)))
}

// DefaultStrategy returns the configured default strategy.
func (e *Engine) DefaultStrategy() models.Strategy {
	return e.cfg.DefaultStrategy
}

// SelectCandidates filters the model set down to eligible candidates and
// orders them per the strategy. The gateway walks the result in order,
// skipping candidates that fail budget or circuit checks.
func (e *Engine) SelectCandidates(req *models.GenerationRequest, strategy models.Strategy) (*models.RoutingDecision, error) {
	e.mu.RLock()
	defs := e.defs
	e.mu.RUnlock()

	promptTokens := models.EstimateTokens(req.Prompt)
	outputTokens := req.MaxTokens
	if outputTokens <= 0 {
		outputTokens = defaultOutputEstimate
	}

	capable := make([]models.ModelDefinition, 0, len(defs))
	for _, def := range defs {
		if !def.Active || !def.HasCapabilities(req.Capabilities) {
			continue
		}
		capable = append(capable, def)
	}
	if len(capable) == 0 {
		return nil, services.ErrNoEligibleModels
	}

	eligible := make([]models.Candidate, 0, len(capable))
	for _, def := range capable {
		if !def.FitsContext(promptTokens, outputTokens) {
			continue
		}
		eligible = append(eligible, models.Candidate{
			Provider:      def.Provider,
			ModelID:       def.ModelID,
			EstimatedCost: def.CostFor(promptTokens, outputTokens),
			Definition:    def,
		})
	}
	if len(eligible) == 0 {
		return nil, services.ErrPromptTooLong
	}

	if strategy == "" {
		strategy = e.cfg.DefaultStrategy
	}

	decision := &models.RoutingDecision{Strategy: strategy}
	switch strategy {
	case models.StrategyPerformanceOptimized:
		e.orderByPerformance(eligible)
		decision.Candidates = eligible
	case models.StrategyABTest:
		variant, candidates := e.applyABTest(req, eligible)
		decision.Variant = variant
		decision.Candidates = candidates
	default:
		e.orderByCost(eligible)
		decision.Candidates = eligible
	}

	return decision, nil
}

// orderByCost sorts ascending by estimated cost; ties resolve by configured
// provider priority, then model id, keeping the order fully deterministic.
func (e *Engine) orderByCost(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		cmp := candidates[i].EstimatedCost.Cmp(candidates[j].EstimatedCost)
		if cmp != 0 {
			return cmp < 0
		}
		pi, pj := e.priorityIndex(candidates[i].Provider), e.priorityIndex(candidates[j].Provider)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].ModelID < candidates[j].ModelID
	})
}

// orderByPerformance sorts by configured performance rank, ignoring cost.
func (e *Engine) orderByPerformance(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Definition.PerformanceRank, candidates[j].Definition.PerformanceRank
		if ri != rj {
			return ri < rj
		}
		pi, pj := e.priorityIndex(candidates[i].Provider), e.priorityIndex(candidates[j].Provider)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].ModelID < candidates[j].ModelID
	})
}

// applyABTest buckets the requester and promotes the variant's model to the
// head of the candidate list; the cost-ordered remainder serves as fallback.
// Without a matching test or an eligible variant model, routing degrades to
// cost ordering.
func (e *Engine) applyABTest(req *models.GenerationRequest, eligible []models.Candidate) (string, []models.Candidate) {
	test := e.matchTest(req.TaskType)
	if test == nil {
		e.orderByCost(eligible)
		return "", eligible
	}

	bucket := VariantBucket(req.UserID)
	variant := pickVariant(test, bucket)
	if variant == nil {
		e.orderByCost(eligible)
		return "", eligible
	}

	e.orderByCost(eligible)
	primaryIdx := -1
	for i, cand := range eligible {
		if cand.ModelID == variant.Model {
			primaryIdx = i
			break
		}
	}
	if primaryIdx < 0 {
		// Variant model is inactive or lacks the required capabilities.
		return "", eligible
	}

	ordered := make([]models.Candidate, 0, len(eligible))
	ordered = append(ordered, eligible[primaryIdx])
	ordered = append(ordered, eligible[:primaryIdx]...)
	ordered = append(ordered, eligible[primaryIdx+1:]...)
	return test.Name + ":" + variant.Name, ordered
}

func (e *Engine) matchTest(taskType string) *ABTest {
	for i := range e.cfg.ABTests {
		t := &e.cfg.ABTests[i]
		if t.TaskType == "" || t.TaskType == taskType {
			return t
		}
	}
	return nil
}

func pickVariant(test *ABTest, bucket int) *ABVariant {
	cumulative := 0
	for i := range test.Variants {
		cumulative += test.Variants[i].Percent
		if bucket < cumulative {
			return &test.Variants[i]
		}
	}
	return nil
}

// VariantBucket maps a user id onto [0, 100). The same user always lands in
// the same bucket for a fixed test configuration.
func VariantBucket(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

func (e *Engine) priorityIndex(provider string) int {
	for i, p := range e.cfg.ProviderPriority {
		if p == provider {
			return i
		}
	}
	return len(e.cfg.ProviderPriority)
}
