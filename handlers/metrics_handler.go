package handlers

import (
	"net/http"

	"github.com/voyagerhq/llm-gateway/services/cache"
	"github.com/voyagerhq/llm-gateway/services/usage"
	"github.com/voyagerhq/llm-gateway/utils"
	"go.uber.org/zap"
)

// CacheStatsProvider is implemented by cache backends that expose counters.
type CacheStatsProvider interface {
	Stats() cache.Stats
}

// MetricsResponse combines pipeline and cache aggregates.
type MetricsResponse struct {
	usage.Snapshot
	Cache *CacheStats `json:"cache,omitempty"`
}

// CacheStats is the cache counter view.
type CacheStats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// MetricsHandler serves the metrics endpoint.
type MetricsHandler struct {
	metrics    *usage.Metrics
	cacheStats CacheStatsProvider
	logger     *zap.Logger
}

// NewMetricsHandler creates a new MetricsHandler. cacheStats may be nil when
// the configured backend exposes no counters.
func NewMetricsHandler(metrics *usage.Metrics, cacheStats CacheStatsProvider, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, cacheStats: cacheStats, logger: logger}
}

// HandleMetrics handles GET /metrics.
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := MetricsResponse{Snapshot: h.metrics.Snapshot()}

	if h.cacheStats != nil {
		stats := h.cacheStats.Stats()
		resp.Cache = &CacheStats{Size: stats.Size, Hits: stats.Hits, Misses: stats.Misses}
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write metrics response", zap.Error(err))
	}
}
