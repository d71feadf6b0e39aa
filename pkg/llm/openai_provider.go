package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// openAIProvider backs both LLM_PROVIDER=openai and =ollama (langchaingo's
// openai client is OpenAI-API-compatible, which is how Ollama's
// `/v1` endpoint is reached — point BaseURL at the local Ollama server).
type openAIProvider struct {
	model llms.Model
	temp  float64
}

func newOpenAIProvider(cfg Config) (Provider, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: construct openai client: %w", err)
	}
	return &openAIProvider{model: model, temp: cfg.Temperature}, nil
}

func (p *openAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTemperature(p.temp))
	if err != nil {
		return "", fmt.Errorf("llm: openai GenerateContent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: openai returned no choices")
	}
	return resp.Choices[0].Content, nil
}
