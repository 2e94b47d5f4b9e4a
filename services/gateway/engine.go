package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services"
	"github.com/voyagerhq/llm-gateway/services/breaker"
	"github.com/voyagerhq/llm-gateway/services/budget"
	"github.com/voyagerhq/llm-gateway/services/cache"
	"github.com/voyagerhq/llm-gateway/services/providers"
	"github.com/voyagerhq/llm-gateway/services/routing"
	"go.uber.org/zap"
)

// maxPromptBytes rejects pathological payloads before any estimation work.
const maxPromptBytes = 1 << 20

// Recorder receives one usage record per attempt outcome. The concrete
// implementation persists asynchronously.
type Recorder interface {
	Record(rec *models.UsageRecord)
}

// Config holds the engine's request handling knobs.
type Config struct {
	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration

	// CacheTTL is the lifetime of a cached generation.
	CacheTTL time.Duration

	// Retry is the per-candidate retry policy.
	Retry Backoff
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 30 * time.Second,
		CacheTTL:       5 * time.Minute,
		Retry:          DefaultBackoff(),
	}
}

// Engine orchestrates the generation pipeline: validation, cache lookup,
// routing, budget authorization, circuit checks, the provider call with
// retries, and settlement of cost, cache, and usage afterwards.
type Engine struct {
	registry *providers.Registry
	router   *routing.Engine
	store    cache.Store
	breakers *breaker.Set
	budgets  *budget.Manager
	recorder Recorder
	cfg      Config
	logger   *zap.Logger

	now func() time.Time // test hook
}

// NewEngine wires the pipeline. store may be nil to disable caching.
func NewEngine(
	registry *providers.Registry,
	router *routing.Engine,
	store cache.Store,
	breakers *breaker.Set,
	budgets *budget.Manager,
	recorder Recorder,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	cfg.Retry = cfg.Retry.normalized()
	return &Engine{
		registry: registry,
		router:   router,
		store:    store,
		breakers: breakers,
		budgets:  budgets,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate runs one request through the full pipeline and returns the
// normalized result. All returned errors are *services.DomainError.
func (e *Engine) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	logger := e.logger.With(
		zap.String("request_id", req.ID.String()),
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
	)

	logger.Debug("step 1: validating request")
	if err := Validate(req); err != nil {
		e.recordRejected(req, err)
		return nil, err
	}

	logger.Debug("step 2: selecting candidates")
	decision, err := e.router.SelectCandidates(req, e.router.DefaultStrategy())
	if err != nil {
		e.recordRejected(req, err)
		return nil, err
	}
	if decision.Variant != "" {
		logger = logger.With(zap.String("ab_variant", decision.Variant))
	}

	logger.Debug("step 3: walking candidates", zap.Int("count", len(decision.Candidates)))
	chain := models.ScopeChainFor(req)
	var lastErr error

	for _, cand := range decision.Candidates {
		if result, ok := e.lookupCache(ctx, req, cand, logger); ok {
			return result, nil
		}

		result, attemptErr := e.tryCandidate(ctx, req, cand, chain, logger)
		if attemptErr == nil {
			return result, nil
		}
		lastErr = preferInformative(lastErr, attemptErr)
	}

	logger.Warn("all candidates exhausted", zap.Error(lastErr))
	e.recordExhausted(req, lastErr)
	return nil, services.NewDomainError(services.ErrorTypeExhausted, "all routing candidates exhausted", lastErr)
}

// tryCandidate authorizes budget, checks the circuit, and runs the provider
// call with retries. A nil error means the result is settled: cost committed,
// cache written, usage recorded.
func (e *Engine) tryCandidate(ctx context.Context, req *models.GenerationRequest, cand models.Candidate, chain []models.Scope, logger *zap.Logger) (*models.GenerationResult, error) {
	logger = logger.With(zap.String("provider", cand.Provider), zap.String("model", cand.ModelID))

	br := e.breakers.For(cand.Provider)
	if !br.Allow() {
		logger.Debug("candidate skipped: circuit open")
		return nil, services.NewDomainError(services.ErrorTypeCircuitOpen, "provider circuit open", nil).
			WithDetail("provider", cand.Provider)
	}

	if err := e.budgets.Authorize(ctx, chain, cand.EstimatedCost); err != nil {
		logger.Debug("candidate skipped: budget denied", zap.Error(err))
		return nil, err
	}

	adapter, err := e.registry.Get(cand.Provider)
	if err != nil {
		e.budgets.Release(chain, cand.EstimatedCost)
		return nil, services.NewDomainError(services.ErrorTypeInternal, "provider not registered", err).
			WithDetail("provider", cand.Provider)
	}

	result, callErr := e.callWithRetry(ctx, adapter, req, cand, br, logger)
	if callErr != nil {
		e.budgets.Release(chain, cand.EstimatedCost)
		e.recordFailure(req, cand, callErr)
		return nil, callErr
	}

	e.settle(ctx, req, cand, chain, result, logger)
	return result, nil
}

// callWithRetry runs provider attempts until success, a non-retryable error,
// or the attempt budget runs out. Breaker accounting happens per attempt.
func (e *Engine) callWithRetry(ctx context.Context, adapter providers.Adapter, req *models.GenerationRequest, cand models.Candidate, br *breaker.Breaker, logger *zap.Logger) (*models.GenerationResult, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if !br.Allow() {
				break
			}
			if err := e.cfg.Retry.Sleep(ctx, attempt-1); err != nil {
				lastErr = providers.ClassifyTransport(cand.Provider, err)
				break
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		result, err := adapter.Generate(attemptCtx, req, cand.ModelID)
		cancel()

		if err == nil {
			br.RecordSuccess()
			return result, nil
		}

		provErr, ok := providers.AsProviderError(err)
		if !ok {
			provErr = providers.NewProviderError(cand.Provider, providers.KindUnavailable, 0, "unclassified provider failure", err)
		}
		if provErr.CountsTowardBreaker() {
			br.RecordFailure()
		}
		lastErr = provErr

		logger.Warn("provider attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", string(provErr.Kind)),
			zap.Error(provErr))

		if !provErr.Retryable() {
			break
		}
	}

	return nil, services.NewDomainError(services.ErrorTypeExternal, "provider call failed", lastErr).
		WithDetail("provider", cand.Provider).
		WithDetail("model", cand.ModelID)
}

// settle finalizes a successful attempt: recompute the exact cost from
// provider-reported tokens, reconcile the budget reservation, cache the
// result, and record usage.
func (e *Engine) settle(ctx context.Context, req *models.GenerationRequest, cand models.Candidate, chain []models.Scope, result *models.GenerationResult, logger *zap.Logger) {
	result.RequestID = req.ID
	result.Cost = cand.Definition.CostFor(result.InputTokens, result.OutputTokens)

	e.budgets.Commit(ctx, chain, cand.EstimatedCost, result.Cost)

	if e.store != nil {
		now := e.now()
		entry := &cache.Entry{
			Result:     *result,
			InsertedAt: now,
			ExpiresAt:  now.Add(e.cfg.CacheTTL),
		}
		if err := e.store.Set(ctx, cache.Key(req, cand.ModelID), entry); err != nil {
			logger.Warn("cache write failed", zap.Error(err))
		}
	}

	rec := models.NewUsageRecord(req)
	rec.Provider = result.Provider
	rec.Model = result.Model
	rec.InputTokens = result.InputTokens
	rec.OutputTokens = result.OutputTokens
	rec.Cost = result.Cost
	rec.LatencyMs = result.Latency.Milliseconds()
	rec.Success = true
	e.recorder.Record(rec)

	logger.Info("generation completed",
		zap.String("cost", result.Cost.String()),
		zap.Int("input_tokens", result.InputTokens),
		zap.Int("output_tokens", result.OutputTokens),
		zap.Duration("latency", result.Latency))
}

// lookupCache serves a prior generation when one exists for this candidate's
// model. Hits bypass budget and circuit checks entirely and bill nothing.
func (e *Engine) lookupCache(ctx context.Context, req *models.GenerationRequest, cand models.Candidate, logger *zap.Logger) (*models.GenerationResult, bool) {
	if e.store == nil {
		return nil, false
	}

	start := e.now()
	entry, ok, err := e.store.Get(ctx, cache.Key(req, cand.ModelID))
	if err != nil {
		logger.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	result := entry.Result
	result.RequestID = req.ID
	result.CacheHit = true
	result.Cost = decimal.Zero
	result.Latency = e.now().Sub(start)

	rec := models.NewUsageRecord(req)
	rec.Provider = result.Provider
	rec.Model = result.Model
	rec.InputTokens = result.InputTokens
	rec.OutputTokens = result.OutputTokens
	rec.LatencyMs = result.Latency.Milliseconds()
	rec.CacheHit = true
	rec.Success = true
	e.recorder.Record(rec)

	logger.Debug("cache hit", zap.String("model", cand.ModelID))
	return &result, true
}

func (e *Engine) recordFailure(req *models.GenerationRequest, cand models.Candidate, err error) {
	rec := models.NewUsageRecord(req)
	rec.Provider = cand.Provider
	rec.Model = cand.ModelID
	rec.ErrorCode = errorCode(err)
	e.recorder.Record(rec)
}

// recordRejected writes the usage record for a request that never reached a
// provider: validation failures and empty candidate sets still show up in
// metrics and the usage log.
func (e *Engine) recordRejected(req *models.GenerationRequest, err error) {
	rec := models.NewUsageRecord(req)
	rec.ErrorCode = errorCode(err)
	e.recorder.Record(rec)
}

func (e *Engine) recordExhausted(req *models.GenerationRequest, lastErr error) {
	rec := models.NewUsageRecord(req)
	rec.ErrorCode = string(services.ErrorTypeExhausted)
	if lastErr != nil {
		rec.ErrorCode = errorCode(lastErr)
	}
	e.recorder.Record(rec)
}

// errorCode derives a stable usage-record code from an error, preferring the
// provider error kind over the broader domain category.
func errorCode(err error) string {
	if provErr, ok := providers.AsProviderError(err); ok {
		return string(provErr.Kind)
	}
	if t := services.GetErrorType(err); t != "" {
		return string(t)
	}
	return "internal"
}

// preferInformative keeps the error a caller can act on: provider-side
// failures explain an outage better than budget or circuit skips.
func preferInformative(current, candidate error) error {
	if current == nil {
		return candidate
	}
	if services.GetErrorType(candidate) == services.ErrorTypeExternal {
		return candidate
	}
	if services.GetErrorType(current) == services.ErrorTypeExternal {
		return current
	}
	return candidate
}

// Validate rejects malformed requests before any routing work.
func Validate(req *models.GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return services.ErrEmptyPrompt
	}
	if len(req.Prompt) > maxPromptBytes {
		return services.NewDomainError(services.ErrorTypeValidation, "prompt exceeds maximum size", nil)
	}
	if req.UserID == "" || req.TenantID == "" {
		return services.ErrMissingIdentity
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return services.ErrInvalidTemperature
	}
	if req.MaxTokens < 0 {
		return services.ErrInvalidMaxTokens
	}
	return nil
}
