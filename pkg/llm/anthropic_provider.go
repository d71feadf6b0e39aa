package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicProvider is grounded on the teacher corpus's
// internal/model/anthropic.go wrapper: a thin anthropic.Client plus a
// fixed model name, calling client.Messages.New directly rather than
// through langchaingo. Like the other providers it makes a plain text
// completion; the Analyzer's tool calls travel as JSON in that text.
type anthropicProvider struct {
	client anthropic.Client
	model  string
	temp   float64
}

func newAnthropicProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic provider requires an API key")
	}
	return &anthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		temp:   cfg.Temperature,
	}, nil
}

func (p *anthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Temperature: anthropic.Float(p.temp),
	})
	if err != nil {
		return "", fmt.Errorf("llm: anthropic Messages.New: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out += b.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("llm: anthropic response had no text content")
	}
	return out, nil
}
