package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// ChatProvider is a chat model that can also list its siblings.
type ChatProvider interface {
	core.AIProvider
	Models(ctx context.Context) ([]string, error)
	Model() string
}

// NewProvider creates the chat provider from configuration. Anthropic gets
// its native client; everything else speaks the OpenAI protocol.
func NewProvider(ctx context.Context, cfg *config.ProviderConfig) (ChatProvider, error) {
	baseURL, err := cfg.GetBaseURL()
	if err != nil {
		return nil, fmt.Errorf("invalid llm provider config: %w", err)
	}

	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	if cfg.Provider == config.ProviderAnthropic {
		return NewAnthropic(baseURL, cfg.APIKey, cfg.Model), nil
	}
	return NewOpenAI(cfg.Provider, baseURL, cfg.APIKey, cfg.Model), nil
}

func NewEmbeddingProvider(ctx context.Context, cfg *config.EmbeddingConfig) (*Embedder, error) {
	baseURL, err := cfg.GetBaseURL()
	if err != nil {
		return nil, fmt.Errorf("invalid embedding provider config: %w", err)
	}

	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting embedding provider")

	return NewEmbedder(cfg.Provider, baseURL, cfg.APIKey, cfg.Model), nil
}
