package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/providers"
)

func TestAdapter_Generate(t *testing.T) {
	var captured struct {
		path string
		auth string
		body chatRequest
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		var resp chatResponse
		resp.ID = "chat_123"
		resp.Message.Content = []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{
			{Type: "text", Text: "first "},
			{Type: "thinking", Text: "ignored"},
			{Type: "text", Text: "second"},
		}
		resp.FinishReason = "COMPLETE"
		resp.Usage.BilledUnits.InputTokens = 15
		resp.Usage.BilledUnits.OutputTokens = 6
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := New(providers.Config{APIKey: "co-test", BaseURL: server.URL})
	req := models.NewGenerationRequest("hello", "alice", "acme", "")
	req.MaxTokens = 64

	result, err := adapter.Generate(context.Background(), req, "command-r")
	require.NoError(t, err)

	assert.Equal(t, "/v2/chat", captured.path)
	assert.Equal(t, "Bearer co-test", captured.auth)
	assert.Equal(t, "command-r", captured.body.Model)
	require.Len(t, captured.body.Messages, 1)
	assert.Equal(t, "user", captured.body.Messages[0].Role)
	assert.Equal(t, "hello", captured.body.Messages[0].Content)
	assert.Equal(t, 64, captured.body.MaxTokens)

	assert.Equal(t, "first second", result.Content, "non-text blocks skipped")
	assert.Equal(t, providerName, result.Provider)
	assert.Equal(t, 15, result.InputTokens)
	assert.Equal(t, 6, result.OutputTokens)
	assert.Equal(t, "COMPLETE", result.FinishReason)
}

func TestAdapter_GenerateClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   providers.ErrorKind
	}{
		{"auth", http.StatusUnauthorized, providers.KindAuth},
		{"rate limited", http.StatusTooManyRequests, providers.KindRateLimited},
		{"server", http.StatusBadGateway, providers.KindServer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			adapter := New(providers.Config{APIKey: "co-test", BaseURL: server.URL})
			req := models.NewGenerationRequest("hello", "alice", "acme", "")

			_, err := adapter.Generate(context.Background(), req, "command-r")
			require.Error(t, err)

			provErr, ok := providers.AsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, provErr.Kind)
		})
	}
}

func TestAdapter_GenerateMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	adapter := New(providers.Config{APIKey: "co-test", BaseURL: server.URL})
	req := models.NewGenerationRequest("hello", "alice", "acme", "")

	_, err := adapter.Generate(context.Background(), req, "command-r")
	require.Error(t, err)

	provErr, ok := providers.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, providers.KindServer, provErr.Kind)
}
