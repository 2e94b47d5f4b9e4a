package gateway

import (
	"context"
	"time"

	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services"
	"github.com/voyagerhq/llm-gateway/services/providers"
	"go.uber.org/zap"
)

// GenerateStream runs the pipeline in streaming mode, delivering chunks to fn
// as they arrive. Candidate fallback only happens before the first chunk is
// delivered: once output has reached the caller, a mid-stream failure aborts
// the request rather than silently restarting on another model.
func (e *Engine) GenerateStream(ctx context.Context, req *models.GenerationRequest, fn providers.StreamHandler) (*models.GenerationResult, error) {
	logger := e.logger.With(
		zap.String("request_id", req.ID.String()),
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
		zap.Bool("stream", true),
	)

	if err := Validate(req); err != nil {
		e.recordRejected(req, err)
		return nil, err
	}

	decision, err := e.router.SelectCandidates(req, e.router.DefaultStrategy())
	if err != nil {
		e.recordRejected(req, err)
		return nil, err
	}

	chain := models.ScopeChainFor(req)
	var lastErr error

	for _, cand := range decision.Candidates {
		if result, ok := e.lookupCache(ctx, req, cand, logger); ok {
			// A cached generation replays as a single chunk.
			if err := fn(providers.StreamChunk{Content: result.Content}); err != nil {
				return nil, services.NewDomainError(services.ErrorTypeInternal, "stream handler aborted", err)
			}
			return result, nil
		}

		result, delivered, attemptErr := e.tryCandidateStream(ctx, req, cand, chain, fn, logger)
		if attemptErr == nil {
			return result, nil
		}
		if delivered {
			// Output already reached the caller; fallback would duplicate it.
			return nil, attemptErr
		}
		lastErr = preferInformative(lastErr, attemptErr)
	}

	logger.Warn("all candidates exhausted", zap.Error(lastErr))
	e.recordExhausted(req, lastErr)
	return nil, services.NewDomainError(services.ErrorTypeExhausted, "all routing candidates exhausted", lastErr)
}

// tryCandidateStream mirrors tryCandidate for the streaming path. The
// delivered return reports whether any chunk reached the handler before the
// failure, which disables fallback. Streams are never retried.
func (e *Engine) tryCandidateStream(ctx context.Context, req *models.GenerationRequest, cand models.Candidate, chain []models.Scope, fn providers.StreamHandler, logger *zap.Logger) (*models.GenerationResult, bool, error) {
	logger = logger.With(zap.String("provider", cand.Provider), zap.String("model", cand.ModelID))

	br := e.breakers.For(cand.Provider)
	if !br.Allow() {
		logger.Debug("candidate skipped: circuit open")
		return nil, false, services.NewDomainError(services.ErrorTypeCircuitOpen, "provider circuit open", nil).
			WithDetail("provider", cand.Provider)
	}

	if err := e.budgets.Authorize(ctx, chain, cand.EstimatedCost); err != nil {
		logger.Debug("candidate skipped: budget denied", zap.Error(err))
		return nil, false, err
	}

	adapter, err := e.registry.Get(cand.Provider)
	if err != nil {
		e.budgets.Release(chain, cand.EstimatedCost)
		return nil, false, services.NewDomainError(services.ErrorTypeInternal, "provider not registered", err).
			WithDetail("provider", cand.Provider)
	}

	delivered := false
	counting := func(chunk providers.StreamChunk) error {
		delivered = true
		return fn(chunk)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	var result *models.GenerationResult
	var callErr error

	if streamer, ok := adapter.(providers.StreamingAdapter); ok {
		result, callErr = streamer.GenerateStream(attemptCtx, req, cand.ModelID, counting)
	} else {
		// Vendor has no streaming API; run the blocking call and emit the
		// whole completion as one chunk.
		result, callErr = adapter.Generate(attemptCtx, req, cand.ModelID)
		if callErr == nil {
			callErr = counting(providers.StreamChunk{Content: result.Content})
			if callErr != nil {
				callErr = providers.NewProviderError(cand.Provider, providers.KindCanceled, 0, "stream handler aborted", callErr)
			}
		}
	}

	if callErr != nil {
		provErr, ok := providers.AsProviderError(callErr)
		if !ok {
			provErr = providers.NewProviderError(cand.Provider, providers.KindUnavailable, 0, "unclassified provider failure", callErr)
		}
		if provErr.CountsTowardBreaker() {
			br.RecordFailure()
		}
		e.budgets.Release(chain, cand.EstimatedCost)
		e.recordFailure(req, cand, provErr)
		wrapped := services.NewDomainError(services.ErrorTypeExternal, "provider call failed", provErr).
			WithDetail("provider", cand.Provider).
			WithDetail("model", cand.ModelID)
		logger.Warn("stream attempt failed", zap.Bool("delivered", delivered), zap.Error(provErr))
		return nil, delivered, wrapped
	}

	br.RecordSuccess()
	if result.Latency <= 0 {
		result.Latency = time.Since(req.ReceivedAt)
	}
	e.settle(ctx, req, cand, chain, result, logger)
	return result, true, nil
}
