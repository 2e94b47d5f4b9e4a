package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/providers"
)

const (
	providerName   = "cohere"
	defaultBaseURL = "https://api.cohere.com"
)

// Adapter implements the provider interface for Cohere's Chat API (v2).
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Cohere adapter.
func New(cfg providers.Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return providerName
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
	Usage        struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"usage"`
}

// Generate performs a chat call.
func (a *Adapter) Generate(ctx context.Context, req *models.GenerationRequest, modelID string) (*models.GenerationResult, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:       modelID,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindBadRequest, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/chat", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindBadRequest, 0, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransport(providerName, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.ClassifyTransport(providerName, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, providers.ClassifyStatus(providerName, httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindServer, httpResp.StatusCode,
			fmt.Sprintf("failed to parse response: %v", err), err)
	}

	text := ""
	for _, block := range resp.Message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &models.GenerationResult{
		RequestID:    req.ID,
		Content:      text,
		Provider:     providerName,
		Model:        modelID,
		InputTokens:  resp.Usage.BilledUnits.InputTokens,
		OutputTokens: resp.Usage.BilledUnits.OutputTokens,
		FinishReason: resp.FinishReason,
		Latency:      time.Since(start),
	}, nil
}
