package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides settings from environment variables. Unset or blank
// variables leave the current value untouched.
func (c *Config) ApplyEnv() error {
	envString("LLM_PROVIDER", &c.LLM.Provider)
	envString("GEMINI_API_KEY", &c.LLM.Gemini.APIKey)
	envString("GEMINI_MODEL", &c.LLM.Gemini.Model)
	envString("GEMINI_BASE_URL", &c.LLM.Gemini.BaseURL)
	envString("OPENAI_API_KEY", &c.LLM.OpenAI.APIKey)
	envString("OPENAI_MODEL", &c.LLM.OpenAI.Model)
	envString("OPENAI_BASE_URL", &c.LLM.OpenAI.BaseURL)
	envString("GROQ_API_KEY", &c.LLM.Groq.APIKey)
	envString("GROQ_MODEL", &c.LLM.Groq.Model)
	envString("GROQ_BASE_URL", &c.LLM.Groq.BaseURL)
	envString("ESCALATION_LOG_PATH", &c.Escalation.LogPath)
	envString("ESCALATION_KAFKA_TOPIC", &c.Escalation.Kafka.Topic)
	envString("ESCALATION_POSTGRES_DSN", &c.Escalation.Postgres.DSN)
	envString("ESCALATION_POSTGRES_TABLE", &c.Escalation.Postgres.Table)
	envString("HTTP_ADDR", &c.Server.Addr)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)

	if v := strings.TrimSpace(os.Getenv("ESCALATION_KAFKA_BROKERS")); v != "" {
		c.Escalation.Kafka.Brokers = splitList(v)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envFloat("CLASSIFIER_TEMPERATURE", &c.LLM.Temperatures.Classification))
	collect(envFloat("DRAFT_TEMPERATURE", &c.LLM.Temperatures.Draft))
	collect(envFloat("REVIEW_TEMPERATURE", &c.LLM.Temperatures.Review))
	collect(envDuration("REQUEST_TIMEOUT", &c.LLM.RequestTimeout))
	collect(envInt("LLM_MAX_RETRIES", &c.LLM.MaxRetries))
	collect(envFloat("RATE_LIMIT_RPS", &c.LLM.RateLimitRPS))
	collect(envInt("MAX_RETRY_ATTEMPTS", &c.Workflow.MaxRetryAttempts))
	collect(envInt("MAX_CONTEXT_LENGTH", &c.Workflow.MaxContextLength))
	collect(envInt("CONTEXT_TOKENS_RESERVED", &c.Workflow.ContextReserved))
	collect(envDuration("ESCALATION_RECORD_TIMEOUT", &c.Escalation.RecordTimeout))
	collect(envInt("WORKERS", &c.Batch.Workers))
	collect(envFloat("BATCH_RATE_LIMIT_RPS", &c.Batch.RateLimitRPS))
	collect(envInt("HISTORY_LIMIT", &c.Server.HistoryLimit))
	return errors.Join(errs...)
}

func envString(varName string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(varName string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envFloat(varName string, dst *float64) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envDuration(varName string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
