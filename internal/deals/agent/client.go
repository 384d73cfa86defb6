// Package agent adapts the Gemini API to the deal engine's field extractor
// and reply generator ports.
package agent

import (
	"context"
	"fmt"

	"salesflow_backend/platform/config"

	"google.golang.org/genai"
)

// NewClient creates a Gemini API client from config.
func NewClient(ctx context.Context, cfg config.AIConfig) (*genai.Client, error) {
	if !cfg.IsAIEnabled() {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}
