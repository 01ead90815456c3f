package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by NewProvider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderStatic = "static"
)

// Providers lists every supported provider name.
var Providers = []string{ProviderGroq, ProviderOpenAI, ProviderGemini, ProviderStatic}

// ProviderConfig selects and configures one backend.
type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// NewProvider constructs the backend named in cfg.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case ProviderGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case ProviderGroq:
		baseURL := cfg.BaseURL
		if strings.TrimSpace(baseURL) == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: baseURL,
		})
	case ProviderStatic:
		return NewStatic(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want one of %s)", cfg.Name, strings.Join(Providers, ", "))
	}
}
