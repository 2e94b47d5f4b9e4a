package usage

import (
	"sort"
	"sync"

	"github.com/voyagerhq/llm-gateway/models"
)

// latencySampleCap bounds the rolling latency window used for percentile
// estimation. Oldest samples are overwritten ring-buffer style.
const latencySampleCap = 2048

// ProviderStats aggregates per-provider outcomes.
type ProviderStats struct {
	Requests  uint64  `json:"requests"`
	Errors    uint64  `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Snapshot is the point-in-time metrics view served by the metrics
// endpoint.
type Snapshot struct {
	Requests     uint64                   `json:"requests"`
	Successes    uint64                   `json:"successes"`
	Failures     uint64                   `json:"failures"`
	CacheHits    uint64                   `json:"cache_hits"`
	CacheMisses  uint64                   `json:"cache_misses"`
	CacheHitRate float64                  `json:"cache_hit_rate"`
	LatencyP50Ms float64                  `json:"latency_p50_ms"`
	LatencyP95Ms float64                  `json:"latency_p95_ms"`
	LatencyP99Ms float64                  `json:"latency_p99_ms"`
	Providers    map[string]ProviderStats `json:"providers"`
}

// Metrics aggregates request outcomes in process. It deliberately stores no
// prompt or response data, only counters and latencies.
type Metrics struct {
	mu          sync.Mutex
	requests    uint64
	successes   uint64
	failures    uint64
	cacheHits   uint64
	cacheMisses uint64
	latencies   []float64
	latencyIdx  int
	providers   map[string]*providerCounters
}

type providerCounters struct {
	requests uint64
	errors   uint64
}

// NewMetrics creates an empty metrics aggregate.
func NewMetrics() *Metrics {
	return &Metrics{
		latencies: make([]float64, 0, latencySampleCap),
		providers: make(map[string]*providerCounters),
	}
}

// Observe folds one usage record into the aggregates.
func (m *Metrics) Observe(rec *models.UsageRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	if rec.Success {
		m.successes++
	} else {
		m.failures++
	}
	if rec.CacheHit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}

	ms := float64(rec.LatencyMs)
	if len(m.latencies) < latencySampleCap {
		m.latencies = append(m.latencies, ms)
	} else {
		m.latencies[m.latencyIdx] = ms
		m.latencyIdx = (m.latencyIdx + 1) % latencySampleCap
	}

	if rec.Provider != "" {
		pc, exists := m.providers[rec.Provider]
		if !exists {
			pc = &providerCounters{}
			m.providers[rec.Provider] = pc
		}
		pc.requests++
		if !rec.Success {
			pc.errors++
		}
	}
}

// Snapshot returns the current aggregates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Requests:    m.requests,
		Successes:   m.successes,
		Failures:    m.failures,
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
		Providers:   make(map[string]ProviderStats, len(m.providers)),
	}

	if total := m.cacheHits + m.cacheMisses; total > 0 {
		snap.CacheHitRate = float64(m.cacheHits) / float64(total)
	}

	if len(m.latencies) > 0 {
		sorted := append([]float64(nil), m.latencies...)
		sort.Float64s(sorted)
		snap.LatencyP50Ms = percentile(sorted, 0.50)
		snap.LatencyP95Ms = percentile(sorted, 0.95)
		snap.LatencyP99Ms = percentile(sorted, 0.99)
	}

	for name, pc := range m.providers {
		stats := ProviderStats{Requests: pc.requests, Errors: pc.errors}
		if pc.requests > 0 {
			stats.ErrorRate = float64(pc.errors) / float64(pc.requests)
		}
		snap.Providers[name] = stats
	}

	return snap
}

// percentile reads the nearest-rank percentile from a sorted sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
