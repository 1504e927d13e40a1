package config

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
	ProviderCustom     = "custom"
)

var defaultBaseURLs = map[string]string{
	ProviderOpenAI:     "https://api.openai.com/v1",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderOllama:     "http://localhost:11434/v1",
	ProviderAnthropic:  "https://api.anthropic.com",
}

type ProviderConfig struct {
	Provider string `env:"TUSK_LLM_PROVIDER" envDefault:"openrouter"`
	Model    string `env:"TUSK_LLM_MODEL" envDefault:"openai/gpt-4o-mini"`
	APIKey   string `env:"TUSK_LLM_API_KEY"`
	BaseURL  string `env:"TUSK_LLM_BASE_URL"`
}

func NewProviderConfig(ctx context.Context) *ProviderConfig {
	return mustLoad[ProviderConfig](ctx)
}

func (c ProviderConfig) GetBaseURL() (string, error) {
	return resolveBaseURL(c.Provider, c.BaseURL)
}

type EmbeddingConfig struct {
	Provider string `env:"TUSK_EMBEDDING_PROVIDER" envDefault:"openai"`
	Model    string `env:"TUSK_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	APIKey   string `env:"TUSK_EMBEDDING_API_KEY"`
	BaseURL  string `env:"TUSK_EMBEDDING_BASE_URL"`
	// MaxTokens caps the text embedded per message.
	MaxTokens int `env:"TUSK_EMBEDDING_MAX_TOKENS" envDefault:"512"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	return mustLoad[EmbeddingConfig](ctx)
}

func (c EmbeddingConfig) GetBaseURL() (string, error) {
	if c.Provider == ProviderAnthropic {
		return "", fmt.Errorf("provider %q has no embeddings api", c.Provider)
	}
	return resolveBaseURL(c.Provider, c.BaseURL)
}

func resolveBaseURL(provider, override string) (string, error) {
	if override != "" {
		return strings.TrimRight(override, "/"), nil
	}
	if url, ok := defaultBaseURLs[provider]; ok {
		return url, nil
	}
	if provider == ProviderCustom {
		return "", fmt.Errorf("provider %q requires a base url", provider)
	}
	return "", fmt.Errorf("unknown provider %q", provider)
}
