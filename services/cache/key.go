package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/voyagerhq/llm-gateway/models"
)

// Key derives the deterministic cache key for a request against a specific
// model. The key covers the normalized prompt, the model id, and every
// sampling parameter that affects output. Requester identity is deliberately
// excluded: two users issuing the same prompt share one entry.
func Key(req *models.GenerationRequest, modelID string) string {
	material := fmt.Sprintf("%s|%s|%d|%.4f",
		NormalizePrompt(req.Prompt),
		modelID,
		req.MaxTokens,
		req.Temperature,
	)
	sum := sha256.Sum256([]byte(material))
	return "gen:" + hex.EncodeToString(sum[:])
}

// NormalizePrompt collapses runs of whitespace so trivially reformatted
// prompts hash to the same key.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
