// Package config loads ticket-agent settings: built-in defaults, then an
// optional YAML file, then environment overrides. Command-line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/escalation"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "TICKET_AGENT_CONFIG"

// ErrMissingCredentials is returned by Validate when the selected provider has no API key.
var ErrMissingCredentials = errors.New("missing provider credentials")

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Escalation EscalationConfig `yaml:"escalation"`
	Batch      BatchConfig      `yaml:"batch"`
	Server     ServerConfig     `yaml:"server"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
}

type LLMConfig struct {
	Provider     string           `yaml:"provider"`
	Gemini       ProviderSettings `yaml:"gemini"`
	OpenAI       ProviderSettings `yaml:"openai"`
	Groq         ProviderSettings `yaml:"groq"`
	Temperatures llm.Temperatures `yaml:"temperatures"`

	// RequestTimeout bounds one generation call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxRetries is the number of extra attempts for transient provider failures.
	MaxRetries int `yaml:"max_retries"`
	// RateLimitRPS caps generation calls per second across all runs; 0 disables.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type ProviderSettings struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type WorkflowConfig struct {
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
	MaxContextLength int `yaml:"max_context_length"`
	ContextReserved  int `yaml:"context_reserved"`
}

// ContextBudget is the character budget for grounding context.
func (w WorkflowConfig) ContextBudget() int {
	return w.MaxContextLength - w.ContextReserved
}

type EscalationConfig struct {
	// LogPath is the CSV escalation log; empty disables it.
	LogPath       string         `yaml:"log_path"`
	Kafka         KafkaConfig    `yaml:"kafka"`
	Postgres      PostgresConfig `yaml:"postgres"`
	RecordTimeout time.Duration  `yaml:"record_timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type BatchConfig struct {
	Workers      int     `yaml:"workers"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	HistoryLimit    int           `yaml:"history_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       llm.ProviderGroq,
			Gemini:         ProviderSettings{Model: "gemini-2.5-flash"},
			OpenAI:         ProviderSettings{Model: "gpt-4"},
			Groq:           ProviderSettings{Model: "llama3-8b-8192", BaseURL: llm.GroqBaseURL},
			Temperatures:   llm.DefaultTemperatures(),
			RequestTimeout: 30 * time.Second,
			MaxRetries:     2,
		},
		Workflow: WorkflowConfig{
			MaxRetryAttempts: 1,
			MaxContextLength: 28000,
			ContextReserved:  1000,
		},
		Escalation: EscalationConfig{
			LogPath:       "data/escalations.csv",
			Kafka:         KafkaConfig{Topic: "ticket-escalations"},
			Postgres:      PostgresConfig{Table: escalation.DefaultTable},
			RecordTimeout: 10 * time.Second,
		},
		Batch: BatchConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			HistoryLimit:    1000,
			ShutdownTimeout: 15 * time.Second,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds a Config from defaults, the YAML file at path (or $TICKET_AGENT_CONFIG
// when path is empty) and environment overrides. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(PathEnv))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Provider returns the settings of the selected provider.
func (c *Config) Provider() llm.ProviderConfig {
	name := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	var s ProviderSettings
	switch name {
	case llm.ProviderGemini:
		s = c.LLM.Gemini
	case llm.ProviderOpenAI:
		s = c.LLM.OpenAI
	case llm.ProviderGroq:
		s = c.LLM.Groq
	}
	return llm.ProviderConfig{Name: name, APIKey: s.APIKey, Model: s.Model, BaseURL: s.BaseURL}
}

// ClientOptions returns the call policy for generation requests.
func (c *Config) ClientOptions() llm.Options {
	return llm.Options{
		MaxRetries:        c.LLM.MaxRetries,
		RequestTimeout:    c.LLM.RequestTimeout,
		RateLimitRPS:      c.LLM.RateLimitRPS,
		BackoffJitterFrac: 0.2,
	}
}

var keyEnv = map[string]string{
	llm.ProviderGemini: "GEMINI_API_KEY",
	llm.ProviderOpenAI: "OPENAI_API_KEY",
	llm.ProviderGroq:   "GROQ_API_KEY",
}

// Validate reports every invalid setting. A missing API key for the selected
// provider wraps ErrMissingCredentials.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	p := c.Provider()
	known := false
	for _, name := range llm.Providers {
		if p.Name == name {
			known = true
		}
	}
	switch {
	case !known:
		bad("llm.provider %q is not one of %s", c.LLM.Provider, strings.Join(llm.Providers, ", "))
	case p.Name != llm.ProviderStatic:
		if strings.TrimSpace(p.APIKey) == "" {
			errs = append(errs, fmt.Errorf("%w: %s is required for provider %s", ErrMissingCredentials, keyEnv[p.Name], p.Name))
		}
		if strings.TrimSpace(p.Model) == "" {
			bad("llm.%s.model is required", p.Name)
		}
	}

	for name, v := range map[string]float64{
		"classification": c.LLM.Temperatures.Classification,
		"draft":          c.LLM.Temperatures.Draft,
		"review":         c.LLM.Temperatures.Review,
	} {
		if v < 0 || v > 2 {
			bad("llm.temperatures.%s=%v must be within [0, 2]", name, v)
		}
	}
	if c.LLM.RequestTimeout <= 0 {
		bad("llm.request_timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		bad("llm.max_retries must be >= 0")
	}
	if c.LLM.RateLimitRPS < 0 {
		bad("llm.rate_limit_rps must be >= 0")
	}

	if c.Workflow.MaxRetryAttempts < 0 {
		bad("workflow.max_retry_attempts must be >= 0")
	}
	if c.Workflow.ContextReserved < 0 {
		bad("workflow.context_reserved must be >= 0")
	}
	if c.Workflow.ContextBudget() <= 0 {
		bad("workflow.max_context_length must exceed context_reserved")
	}

	if len(c.Escalation.Kafka.Brokers) > 0 && strings.TrimSpace(c.Escalation.Kafka.Topic) == "" {
		bad("escalation.kafka.topic is required when brokers are set")
	}
	if c.Escalation.RecordTimeout <= 0 {
		bad("escalation.record_timeout must be positive")
	}

	if c.Batch.Workers < 1 {
		bad("batch.workers must be >= 1")
	}
	if c.Batch.RateLimitRPS < 0 {
		bad("batch.rate_limit_rps must be >= 0")
	}
	if c.Server.HistoryLimit < 0 {
		bad("server.history_limit must be >= 0")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		bad("log_level %q must be debug, info, warn or error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		bad("log_format %q must be text or json", c.LogFormat)
	}

	return errors.Join(errs...)
}
