// Package config loads and validates the agent's YAML configuration,
// grounded on the teacher's internal/config/config_test.go schema
// (server/slm/kubernetes/actions/filters/logging/webhook), extended with
// the llm/eventlog/escalation sections this spec adds.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port" validate:"required"`
	MetricsPort string `yaml:"metrics_port" validate:"required"`
}

// SLMConfig configures the default (non-LLM-agent) small-language-model
// endpoint kept for backward compatibility with the teacher's original
// config shape; LLMConfig below is the primary provider configuration used
// by pkg/llm.
type SLMConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	Provider    string        `yaml:"provider"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

type KubernetesConfig struct {
	Context   string `yaml:"context"`
	Namespace string `yaml:"namespace"`
}

type ActionsConfig struct {
	DryRun            bool          `yaml:"dry_run"`
	MaxConcurrent     int           `yaml:"max_concurrent" validate:"gte=1"`
	CooldownPeriod    time.Duration `yaml:"cooldown_period"`
	MaxReplanAttempts int           `yaml:"max_replan_attempts" validate:"gte=1"`
}

type FilterCondition struct {
	Namespace []string `yaml:"namespace"`
	Severity  []string `yaml:"severity"`
}

type FilterConfig struct {
	Name       string          `yaml:"name"`
	Conditions FilterCondition `yaml:"conditions"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type WebhookAuthConfig struct {
	Type  string `yaml:"type"`
	Token string `yaml:"token"`
}

type WebhookConfig struct {
	Port string            `yaml:"port"`
	Path string            `yaml:"path"`
	Auth WebhookAuthConfig `yaml:"auth"`
}

// LLMConfig is the §6 environment-driven LLM-assist configuration. Fields
// are populated from YAML defaults and then overridden by environment
// variables in Load.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float32       `yaml:"temperature"`
	BaseURL     string        `yaml:"base_url"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Enabled reports whether the LLM-assist path should run: the named
// API-key environment variable must be non-empty (§6).
func (c LLMConfig) Enabled() bool {
	return os.Getenv(c.APIKeyEnv) != ""
}

func (c LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

type EventLogConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

type EscalationConfig struct {
	QueueCapacity  int    `yaml:"queue_capacity" validate:"gte=1"`
	SlackWebhook   string `yaml:"slack_webhook"`
	SlackChannel   string `yaml:"slack_channel"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	SLM        SLMConfig        `yaml:"slm"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Actions    ActionsConfig    `yaml:"actions"`
	Filters    []FilterConfig   `yaml:"filters"`
	Logging    LoggingConfig    `yaml:"logging"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	LLM        LLMConfig        `yaml:"llm"`
	EventLog   EventLogConfig   `yaml:"event_log"`
	Escalation EscalationConfig `yaml:"escalation"`
}

func defaults() *Config {
	return &Config{
		Actions: ActionsConfig{
			MaxConcurrent:     5,
			CooldownPeriod:    5 * time.Minute,
			MaxReplanAttempts: 3,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
			CallTimeout: 60 * time.Second,
		},
		EventLog:   EventLogConfig{Driver: "sqlite", DSN: "incidents.db"},
		Escalation: EscalationConfig{QueueCapacity: 64},
	}
}

// Load reads and validates the YAML config file at path, applying §6
// environment-variable overrides for the LLM section afterward.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		cfg.LLM.Provider = p
	}
	if m := os.Getenv("LLM_MODEL"); m != "" {
		cfg.LLM.Model = m
	}
	if e := os.Getenv("LLM_API_KEY_ENV"); e != "" {
		cfg.LLM.APIKeyEnv = e
	}
	if t := os.Getenv("LLM_TEMPERATURE"); t != "" {
		var f float32
		if _, err := fmt.Sscanf(t, "%f", &f); err == nil {
			cfg.LLM.Temperature = f
		}
	}
	if b := os.Getenv("OPENAI_BASE_URL"); b != "" {
		cfg.LLM.BaseURL = b
	}
}
