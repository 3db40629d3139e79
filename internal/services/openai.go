package services

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT3Dot5Turbo

// OpenAITextProvider completes narration prompts with the chat completions API.
type OpenAITextProvider struct {
	client *openai.Client
	model  string
}

var _ TextProvider = (*OpenAITextProvider)(nil)

func NewOpenAITextProvider(apiKey, model string) *OpenAITextProvider {
	return NewOpenAITextProviderWithBaseURL(apiKey, model, "")
}

// NewOpenAITextProviderWithBaseURL points the client at a compatible endpoint.
// An empty baseURL keeps the public API.
func NewOpenAITextProviderWithBaseURL(apiKey, model, baseURL string) *OpenAITextProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAITextProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (p *OpenAITextProvider) Name() string { return "openai" }

func (p *OpenAITextProvider) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai returned empty content")
	}
	return content, nil
}
