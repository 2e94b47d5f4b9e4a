package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a cache store backed by a shared Redis instance, for deployments
// running more than one gateway replica. Redis owns TTL expiry and memory
// bounds, so no in-process eviction bookkeeping is needed.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	hits   uint64
	misses uint64
}

// NewRedis connects to the Redis URL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddUint64(&r.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached entry: %w", err)
	}
	if entry.Expired(time.Now()) {
		atomic.AddUint64(&r.misses, 1)
		return nil, false, nil
	}

	atomic.AddUint64(&r.hits, 1)
	return &entry, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, entry *Entry) error {
	now := time.Now()
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = now
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.InsertedAt.Add(r.ttl)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return r.client.Set(ctx, key, data, time.Until(entry.ExpiresAt)).Err()
}

// Remove implements Store.
func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Stats returns hit/miss counters. Size is not tracked; Redis owns it.
func (r *Redis) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadUint64(&r.hits),
		Misses: atomic.LoadUint64(&r.misses),
	}
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
