package providers

import (
	"context"
	"time"

	"github.com/voyagerhq/llm-gateway/models"
)

// Adapter is the unified interface every LLM vendor adapter implements.
// Adapters translate wire-protocol concerns only: auth headers, payload
// shape, and error classification. They never touch the cache, budget, or
// usage stores; the gateway engine owns those side effects.
type Adapter interface {
	// Name returns the provider name (e.g. "openai", "anthropic").
	Name() string

	// Generate performs a single completion call against modelID. The
	// returned result carries token counts taken from the provider
	// response, never estimates. Failures are always *ProviderError.
	Generate(ctx context.Context, req *models.GenerationRequest, modelID string) (*models.GenerationResult, error)
}

// StreamChunk is one incremental piece of a streamed completion.
type StreamChunk struct {
	Content string
}

// StreamHandler receives chunks as they arrive. Returning an error aborts
// the stream.
type StreamHandler func(chunk StreamChunk) error

// StreamingAdapter extends Adapter for vendors whose API supports
// incremental delivery. The final result aggregates the full content and
// usage so the gateway can cache and bill it like any other completion.
type StreamingAdapter interface {
	Adapter

	GenerateStream(ctx context.Context, req *models.GenerationRequest, modelID string, fn StreamHandler) (*models.GenerationResult, error)
}

// Config holds the per-vendor settings an adapter needs at construction.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}
