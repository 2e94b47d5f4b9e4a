package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/providers"
)

const (
	providerName   = "gemini"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Adapter implements the provider interface for Google's Gemini API.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Gemini adapter.
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

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate performs a generateContent call.
func (a *Adapter) Generate(ctx context.Context, req *models.GenerationRequest, modelID string) (*models.GenerationResult, error) {
	start := time.Now()

	genReq := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	cfg := &generationConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = &req.MaxTokens
	}
	if cfg.Temperature != nil || cfg.MaxOutputTokens != nil {
		genReq.GenerationConfig = cfg
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindBadRequest, 0, "failed to marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, modelID, url.QueryEscape(a.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindBadRequest, 0, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindServer, httpResp.StatusCode,
			fmt.Sprintf("failed to parse response: %v", err), err)
	}

	text := ""
	finishReason := ""
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			text += p.Text
		}
		finishReason = resp.Candidates[0].FinishReason
	}

	return &models.GenerationResult{
		RequestID:    req.ID,
		Content:      text,
		Provider:     providerName,
		Model:        modelID,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		FinishReason: finishReason,
		Latency:      time.Since(start),
	}, nil
}
