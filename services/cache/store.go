package cache

import (
	"context"
	"time"

	"github.com/voyagerhq/llm-gateway/models"
)

// Entry is one cached generation with its lifetime metadata.
type Entry struct {
	Result     models.GenerationResult `json:"result"`
	InsertedAt time.Time               `json:"inserted_at"`
	ExpiresAt  time.Time               `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL. TTL is never renewed on
// hit, bounding staleness regardless of reuse.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the cache backend contract. The in-memory implementation serves
// single-node deployments; the Redis implementation shares entries across
// replicas.
type Store interface {
	// Get returns the entry for key, or ok=false on miss or expiry.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores the entry, evicting as needed to respect capacity.
	Set(ctx context.Context, key string, entry *Entry) error

	// Remove drops an entry if present.
	Remove(ctx context.Context, key string) error
}

// Stats reports hit/miss counters for the metrics endpoint.
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}
