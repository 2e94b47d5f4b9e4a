package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/providers"
)

func TestAdapter_Generate(t *testing.T) {
	var captured struct {
		path    string
		apiKey  string
		version string
		body    messagesRequest
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.apiKey = r.Header.Get("x-api-key")
		captured.version = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		_ = json.NewEncoder(w).Encode(messagesResponse{
			ID:         "msg_123",
			Content:    []contentBlock{{Type: "text", Text: "hi "}, {Type: "text", Text: "there"}},
			Model:      "claude-sonnet",
			StopReason: "end_turn",
			Usage:      usage{InputTokens: 12, OutputTokens: 7},
		})
	}))
	defer server.Close()

	adapter := New(providers.Config{APIKey: "sk-test", BaseURL: server.URL, Timeout: 5 * time.Second})
	req := models.NewGenerationRequest("hello", "alice", "acme", "")
	req.MaxTokens = 256
	req.Temperature = 0.5

	result, err := adapter.Generate(context.Background(), req, "claude-sonnet")
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", captured.path)
	assert.Equal(t, "sk-test", captured.apiKey)
	assert.Equal(t, apiVersion, captured.version)
	assert.Equal(t, "claude-sonnet", captured.body.Model)
	assert.Equal(t, 256, captured.body.MaxTokens)

	assert.Equal(t, "hi there", result.Content)
	assert.Equal(t, providerName, result.Provider)
	assert.Equal(t, 12, result.InputTokens)
	assert.Equal(t, 7, result.OutputTokens)
	assert.Equal(t, "end_turn", result.FinishReason)
}

func TestAdapter_GenerateDefaultsMaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		// The Messages API rejects requests without max_tokens.
		assert.Equal(t, 1024, body.MaxTokens)
		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content: []contentBlock{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	adapter := New(providers.Config{APIKey: "sk-test", BaseURL: server.URL})
	req := models.NewGenerationRequest("hello", "alice", "acme", "")

	_, err := adapter.Generate(context.Background(), req, "claude-sonnet")
	require.NoError(t, err)
}

func TestAdapter_GenerateClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   providers.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, providers.KindRateLimited},
		{"auth", http.StatusUnauthorized, providers.KindAuth},
		{"server", http.StatusInternalServerError, providers.KindServer},
		{"bad request", http.StatusBadRequest, providers.KindBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"nope"}}`))
			}))
			defer server.Close()

			adapter := New(providers.Config{APIKey: "sk-test", BaseURL: server.URL})
			req := models.NewGenerationRequest("hello", "alice", "acme", "")

			_, err := adapter.Generate(context.Background(), req, "claude-sonnet")
			require.Error(t, err)

			provErr, ok := providers.AsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, provErr.Kind)
			assert.Equal(t, "nope", provErr.Message, "error envelope message extracted")
		})
	}
}

func TestAdapter_GenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can observe the client disconnect
		// and cancel the request context; otherwise Close blocks forever.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	adapter := New(providers.Config{APIKey: "sk-test", BaseURL: server.URL})
	req := models.NewGenerationRequest("hello", "alice", "acme", "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.Generate(ctx, req, "claude-sonnet")
	require.Error(t, err)

	provErr, ok := providers.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, providers.KindTimeout, provErr.Kind)
}
