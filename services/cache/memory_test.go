package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
)

func newTestMemory(capacity int, ttl time.Duration) (*Memory, *time.Time) {
	m := NewMemory(capacity, ttl)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	return m, &current
}

func entryFor(content string) *Entry {
	return &Entry{Result: models.GenerationResult{Content: content}}
}

func TestMemory_SetAndGet(t *testing.T) {
	m, _ := newTestMemory(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", entryFor("hello")))

	got, ok, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Result.Content)

	_, ok, err = m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	m, current := newTestMemory(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", entryFor("hello")))

	*current = current.Add(59 * time.Second)
	_, ok, _ := m.Get(ctx, "k1")
	assert.True(t, ok)

	*current = current.Add(2 * time.Second)
	_, ok, _ = m.Get(ctx, "k1")
	assert.False(t, ok, "entry expired")

	stats := m.Stats()
	assert.Equal(t, 0, stats.Size, "expired entry removed on access")
}

func TestMemory_HitDoesNotRenewTTL(t *testing.T) {
	m, current := newTestMemory(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", entryFor("hello")))

	// Repeated hits must not extend the entry's lifetime.
	*current = current.Add(30 * time.Second)
	_, ok, _ := m.Get(ctx, "k1")
	require.True(t, ok)

	*current = current.Add(31 * time.Second)
	_, ok, _ = m.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestMemory_LRUEvictionIsDeterministic(t *testing.T) {
	m, _ := newTestMemory(3, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", entryFor("a")))
	require.NoError(t, m.Set(ctx, "b", entryFor("b")))
	require.NoError(t, m.Set(ctx, "c", entryFor("c")))

	// Touch "a" so "b" becomes the least recently used.
	_, ok, _ := m.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, m.Set(ctx, "d", entryFor("d")))

	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok, "b evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok, _ = m.Get(ctx, key)
		assert.True(t, ok, key)
	}
}

func TestMemory_EvictionThenReinsert(t *testing.T) {
	m, _ := newTestMemory(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", entryFor("a")))
	require.NoError(t, m.Set(ctx, "b", entryFor("b")))
	require.NoError(t, m.Set(ctx, "c", entryFor("c")))

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", entryFor("a2")))
	got, ok, _ := m.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Result.Content)
	assert.Equal(t, 2, m.Stats().Size)
}

func TestMemory_CleanupExpired(t *testing.T) {
	m, current := newTestMemory(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", entryFor("a")))

	*current = current.Add(30 * time.Second)
	require.NoError(t, m.Set(ctx, "b", entryFor("b")))

	*current = current.Add(45 * time.Second)
	removed := m.CleanupExpired()
	assert.Equal(t, 1, removed, "only the older entry expired")
	assert.Equal(t, 1, m.Stats().Size)
}

func TestMemory_Stats(t *testing.T) {
	m, _ := newTestMemory(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", entryFor("a")))
	m.Get(ctx, "a")
	m.Get(ctx, "a")
	m.Get(ctx, "missing")

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestMemory_Remove(t *testing.T) {
	m, _ := newTestMemory(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", entryFor("a")))
	require.NoError(t, m.Remove(ctx, "a"))

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)
}
