// Package llm wires the three optional uncertain-path agents of spec
// §4.7 (Interpreter, Analyzer, Proposer) over a pluggable Provider,
// plus the safety gate that filters whatever the LLM returns down to
// what the executor may actually run.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Config is the shared provider configuration named in spec §4.7 and
// §6's environment variables: provider, model, temperature, API key,
// optional base URL.
type Config struct {
	Provider    string // "openai", "ollama", "anthropic", "bedrock"
	Model       string
	Temperature float64
	APIKey      string
	BaseURL     string // OPENAI_BASE_URL equivalent; honored by the openai/ollama backend only
	Timeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second // defaulted here only; no provider applies Timeout to its Complete calls
	}
	return c
}

// Provider is a single text-completion call against one LLM backend.
// Every agent (Interpreter/Analyzer/Proposer) prompts for strict JSON
// output and parses tolerantly, so Provider itself stays a plain
// text-in/text-out boundary.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewProvider constructs the Provider named by cfg.Provider. An empty
// APIKey disables the LLM path entirely (spec §6: "LLM disabled when
// the named API-key variable is empty"), so callers should check that
// before calling NewProvider.
func NewProvider(cfg Config) (Provider, error) {
	cfg = cfg.withDefaults()
	switch cfg.Provider {
	case "", "openai", "ollama":
		return newOpenAIProvider(cfg)
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "bedrock":
		return newBedrockProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
