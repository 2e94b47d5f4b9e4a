package handlers

import (
	"net/http"
	"time"

	"github.com/voyagerhq/llm-gateway/services/breaker"
	"github.com/voyagerhq/llm-gateway/services/providers"
	"github.com/voyagerhq/llm-gateway/utils"
	"go.uber.org/zap"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse reports per-dependency health. Status is degraded when
// any provider circuit is open; the gateway still serves what it can.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Providers []string          `json:"providers"`
	Circuits  map[string]string `json:"circuits"`
	Timestamp string            `json:"timestamp"`
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	registry *providers.Registry
	breakers *breaker.Set
	version  string
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(registry *providers.Registry, breakers *breaker.Set, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		breakers: breakers,
		version:  version,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz. Always 200 while the process serves.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.breakers.AnyOpen() {
		status = "degraded"
	}

	resp := ReadinessResponse{
		Status:    status,
		Providers: h.registry.Names(),
		Circuits:  h.breakers.Snapshot(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
