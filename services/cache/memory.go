package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU cache with TTL. Eviction is deterministic:
// least-recently-used first, ties broken by earliest insertion time. A hit
// refreshes recency but never the TTL.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	lruList  *list.List
	capacity int
	ttl      time.Duration
	hits     uint64
	misses   uint64

	now func() time.Time // test hook
}

type memoryEntry struct {
	key     string
	entry   *Entry
	element *list.Element
}

// NewMemory creates a memory store with the given capacity and default TTL.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]*memoryEntry),
		lruList:  list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, exists := m.entries[key]
	if !exists {
		m.misses++
		return nil, false, nil
	}
	if me.entry.Expired(m.now()) {
		m.removeLocked(key)
		m.misses++
		return nil, false, nil
	}

	m.lruList.MoveToFront(me.element)
	m.hits++
	return me.entry, true, nil
}

// Set implements Store. The entry's ExpiresAt is derived from the store TTL
// when unset.
func (m *Memory) Set(_ context.Context, key string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = now
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.InsertedAt.Add(m.ttl)
	}

	if existing, exists := m.entries[key]; exists {
		existing.entry = entry
		m.lruList.MoveToFront(existing.element)
		return nil
	}

	for m.capacity > 0 && m.lruList.Len() >= m.capacity {
		m.evictLocked()
	}

	me := &memoryEntry{key: key, entry: entry}
	me.element = m.lruList.PushFront(me)
	m.entries[key] = me
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	return nil
}

// CleanupExpired drops every expired entry and returns how many were
// removed. Called periodically from a background goroutine.
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expired := make([]string, 0)
	for key, me := range m.entries {
		if me.entry.Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		m.removeLocked(key)
	}
	return len(expired)
}

// StartCleanupWorker runs CleanupExpired on the given interval until ctx is
// canceled.
func (m *Memory) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns hit/miss counters and the current size.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Size: m.lruList.Len(), Hits: m.hits, Misses: m.misses}
}

func (m *Memory) removeLocked(key string) {
	if me, exists := m.entries[key]; exists {
		m.lruList.Remove(me.element)
		delete(m.entries, key)
	}
}

// evictLocked removes the least-recently-used entry. The list keeps entries
// in strict recency order and insertion pushes to the front, so equal-recency
// ties resolve to the earliest insertion. Eviction order is reproducible.
func (m *Memory) evictLocked() {
	back := m.lruList.Back()
	if back == nil {
		return
	}
	victim := back.Value.(*memoryEntry)
	m.lruList.Remove(back)
	delete(m.entries, victim.key)
}
