package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/providers"
	"github.com/voyagerhq/llm-gateway/utils"
	"go.uber.org/zap"
)

// GenerateRequest is the inbound body for POST /v1/generate.
type GenerateRequest struct {
	Prompt       string   `json:"prompt"`
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id"`
	TaskType     string   `json:"task_type,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Stream       bool     `json:"stream,omitempty"`
}

// GenerateResponse is the completed generation returned to the caller.
type GenerateResponse struct {
	RequestID    string  `json:"request_id"`
	Content      string  `json:"content"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	FinishReason string  `json:"finish_reason,omitempty"`
	LatencyMs    int64   `json:"latency_ms"`
	Cost         float64 `json:"cost"`
	CacheHit     bool    `json:"cache_hit"`
}

// GenerationService is the pipeline surface the handler depends on.
type GenerationService interface {
	Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error)
	GenerateStream(ctx context.Context, req *models.GenerationRequest, fn providers.StreamHandler) (*models.GenerationResult, error)
}

// GenerateHandler handles generation HTTP requests.
type GenerateHandler struct {
	service GenerationService
	logger  *zap.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(service GenerationService, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{service: service, logger: logger}
}

// HandleGenerate handles POST /v1/generate.
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := chimiddleware.GetReqID(ctx)

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	req := models.NewGenerationRequest(body.Prompt, body.UserID, body.TenantID, body.TaskType)
	req.MaxTokens = body.MaxTokens
	req.Capabilities = body.Capabilities
	req.Stream = body.Stream
	if body.Temperature != nil {
		req.Temperature = *body.Temperature
	}

	h.logger.Debug("processing generation",
		zap.String("trace_id", traceID),
		zap.String("request_id", req.ID.String()),
		zap.String("tenant_id", req.TenantID),
		zap.Bool("stream", req.Stream))

	if body.Stream {
		h.handleStream(w, r, req, traceID)
		return
	}

	result, err := h.service.Generate(ctx, req)
	if err != nil {
		h.logger.Warn("generation failed",
			zap.String("trace_id", traceID),
			zap.String("request_id", req.ID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, toResponse(result)); err != nil {
		h.logger.Error("failed to write response",
			zap.String("trace_id", traceID),
			zap.Error(err))
	}
}

// handleStream serves the generation as server-sent events: one data event
// per chunk, a final done event with the summary, or an error event when the
// pipeline fails before any output.
func (h *GenerateHandler) handleStream(w http.ResponseWriter, r *http.Request, req *models.GenerationRequest, traceID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalServerError(w, "Streaming unsupported by connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	result, err := h.service.GenerateStream(r.Context(), req, func(chunk providers.StreamChunk) error {
		payload, merr := json.Marshal(map[string]string{"content": chunk.Content})
		if merr != nil {
			return merr
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", payload); werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})

	if err != nil {
		h.logger.Warn("stream generation failed",
			zap.String("trace_id", traceID),
			zap.String("request_id", req.ID.String()),
			zap.Error(err))
		payload, _ := json.Marshal(utils.ErrorResponse{
			ErrorCode: errorCodeOf(err),
			Message:   err.Error(),
		})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	payload, _ := json.Marshal(toResponse(result))
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}

func toResponse(result *models.GenerationResult) GenerateResponse {
	cost, _ := result.Cost.Float64()
	return GenerateResponse{
		RequestID:    result.RequestID.String(),
		Content:      result.Content,
		Provider:     result.Provider,
		Model:        result.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		FinishReason: result.FinishReason,
		LatencyMs:    result.Latency.Milliseconds(),
		Cost:         cost,
		CacheHit:     result.CacheHit,
	}
}
