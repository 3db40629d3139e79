package services

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiTextProvider completes narration prompts with the Gemini API. It is
// used when no OpenAI key is configured.
type GeminiTextProvider struct {
	apiKey string
	model  string
}

var _ TextProvider = (*GeminiTextProvider)(nil)

func NewGeminiTextProvider(apiKey, model string) *GeminiTextProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiTextProvider{apiKey: apiKey, model: model}
}

func (p *GeminiTextProvider) Name() string { return "gemini" }

func (p *GeminiTextProvider) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return text, nil
}
