package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services"
	"github.com/voyagerhq/llm-gateway/services/providers"
	"go.uber.org/zap"
)

// fakeService scripts the pipeline behind the handler.
type fakeService struct {
	result  *models.GenerationResult
	chunks  []string
	err     error
	lastReq *models.GenerationRequest
}

func (f *fakeService) Generate(_ context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.RequestID = req.ID
	return &result, nil
}

func (f *fakeService) GenerateStream(_ context.Context, req *models.GenerationRequest, fn providers.StreamHandler) (*models.GenerationResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	for _, chunk := range f.chunks {
		if err := fn(providers.StreamChunk{Content: chunk}); err != nil {
			return nil, err
		}
	}
	result := *f.result
	result.RequestID = req.ID
	return &result, nil
}

func successResult() *models.GenerationResult {
	return &models.GenerationResult{
		Content:      "generated text",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		InputTokens:  100,
		OutputTokens: 50,
		FinishReason: "stop",
		Latency:      250 * time.Millisecond,
		Cost:         decimal.RequireFromString("0.0002"),
	}
}

func postGenerate(t *testing.T, handler *GenerateHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleGenerate(rec, req)
	return rec
}

func TestHandleGenerate(t *testing.T) {
	svc := &fakeService{result: successResult()}
	handler := NewGenerateHandler(svc, zap.NewNop())

	rec := postGenerate(t, handler, `{
		"prompt": "hello",
		"user_id": "alice",
		"tenant_id": "acme",
		"max_tokens": 64,
		"temperature": 0.3
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "generated text", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, int64(250), resp.LatencyMs)
	assert.InDelta(t, 0.0002, resp.Cost, 1e-9)
	assert.False(t, resp.CacheHit)

	require.NotNil(t, svc.lastReq)
	assert.Equal(t, "alice", svc.lastReq.UserID)
	assert.Equal(t, 64, svc.lastReq.MaxTokens)
	assert.Equal(t, 0.3, svc.lastReq.Temperature)
}

func TestHandleGenerate_MalformedBody(t *testing.T) {
	handler := NewGenerateHandler(&fakeService{result: successResult()}, zap.NewNop())

	rec := postGenerate(t, handler, `{"prompt": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGenerate_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryable  bool
	}{
		{"validation", services.ErrEmptyPrompt, http.StatusBadRequest, "validation", false},
		{"budget", services.ErrBudgetExceeded, http.StatusTooManyRequests, "budget", true},
		{"circuit open", services.ErrCircuitOpen, http.StatusServiceUnavailable, "circuit_open", true},
		{"exhausted", services.ErrAllCandidatesExhausted, http.StatusBadGateway, "exhausted", true},
		{"external", services.NewDomainError(services.ErrorTypeExternal, "provider failed", nil), http.StatusBadGateway, "external", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewGenerateHandler(&fakeService{err: tc.err}, zap.NewNop())
			rec := postGenerate(t, handler, `{"prompt": "hi", "user_id": "alice", "tenant_id": "acme"}`)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body struct {
				ErrorCode string `json:"error_code"`
				Retryable bool   `json:"retryable"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.ErrorCode)
			assert.Equal(t, tc.retryable, body.Retryable)
		})
	}
}

func TestHandleGenerate_InternalErrorIsGeneric(t *testing.T) {
	err := services.NewDomainError(services.ErrorTypeInternal, "connection pool exhausted on db-3", nil)
	handler := NewGenerateHandler(&fakeService{err: err}, zap.NewNop())

	rec := postGenerate(t, handler, `{"prompt": "hi", "user_id": "alice", "tenant_id": "acme"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db-3", "internal details stay out of responses")
}

func TestHandleGenerate_Stream(t *testing.T) {
	svc := &fakeService{result: successResult(), chunks: []string{"gen", "erated"}}
	handler := NewGenerateHandler(svc, zap.NewNop())

	rec := postGenerate(t, handler, `{"prompt": "hi", "user_id": "alice", "tenant_id": "acme", "stream": true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.Bytes())
	require.Len(t, events, 3)
	assert.Equal(t, `{"content":"gen"}`, events[0].data)
	assert.Equal(t, `{"content":"erated"}`, events[1].data)
	assert.Equal(t, "done", events[2].name)

	var summary GenerateResponse
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &summary))
	assert.Equal(t, "generated text", summary.Content)
}

func TestHandleGenerate_StreamError(t *testing.T) {
	svc := &fakeService{err: services.ErrAllCandidatesExhausted}
	handler := NewGenerateHandler(svc, zap.NewNop())

	rec := postGenerate(t, handler, `{"prompt": "hi", "user_id": "alice", "tenant_id": "acme", "stream": true}`)

	// Headers are committed before the pipeline runs, so failures arrive as
	// an error event, not a status code.
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
	assert.Contains(t, events[0].data, "exhausted")
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, raw []byte) []sseEvent {
	t.Helper()
	var events []sseEvent
	current := sseEvent{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.data != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}
