package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/services/providers"
)

const providerName = "openai"

// Adapter implements the provider interface for OpenAI using the official
// community client. It also supports incremental delivery.
type Adapter struct {
	client *goopenai.Client
}

// New creates a new OpenAI adapter.
func New(cfg providers.Config) *Adapter {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Adapter{client: goopenai.NewClientWithConfig(clientCfg)}
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return providerName
}

// Generate performs a chat completion call.
func (a *Adapter) Generate(ctx context.Context, req *models.GenerationRequest, modelID string) (*models.GenerationResult, error) {
	start := time.Now()

	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req, modelID, false))
	if err != nil {
		return nil, classify(err)
	}

	result := &models.GenerationResult{
		RequestID:    req.ID,
		Provider:     providerName,
		Model:        modelID,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		result.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return result, nil
}

// GenerateStream performs a streaming chat completion, invoking fn for each
// content delta. Token counts in the final result are estimated because the
// streaming API does not report usage.
func (a *Adapter) GenerateStream(ctx context.Context, req *models.GenerationRequest, modelID string, fn providers.StreamHandler) (*models.GenerationResult, error) {
	start := time.Now()

	stream, err := a.client.CreateChatCompletionStream(ctx, a.buildRequest(req, modelID, true))
	if err != nil {
		return nil, classify(err)
	}
	defer stream.Close()

	var content strings.Builder
	finishReason := ""
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if chunk.Choices[0].FinishReason != "" {
			finishReason = string(chunk.Choices[0].FinishReason)
		}
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := fn(providers.StreamChunk{Content: delta}); err != nil {
			return nil, providers.NewProviderError(providerName, providers.KindCanceled, 0, "stream consumer aborted", err)
		}
	}

	return &models.GenerationResult{
		RequestID:    req.ID,
		Content:      content.String(),
		Provider:     providerName,
		Model:        modelID,
		InputTokens:  models.EstimateTokens(req.Prompt),
		OutputTokens: models.EstimateTokens(content.String()),
		FinishReason: finishReason,
		Latency:      time.Since(start),
	}, nil
}

func (a *Adapter) buildRequest(req *models.GenerationRequest, modelID string, stream bool) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model: modelID,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
}

func classify(err error) *providers.ProviderError {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return providers.ClassifyStatus(providerName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return providers.ClassifyTransport(providerName, err)
}
