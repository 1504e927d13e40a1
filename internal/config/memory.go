package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type MemoryConfig struct {
	LastMessages      int    `env:"TUSK_MEMORY_LAST_MESSAGES" envDefault:"30"`
	SemanticRecall    bool   `env:"TUSK_MEMORY_SEMANTIC_RECALL" envDefault:"true"`
	TopK              int    `env:"TUSK_MEMORY_TOP_K" envDefault:"4"`
	MessageRange      int    `env:"TUSK_MEMORY_MESSAGE_RANGE" envDefault:"1"`
	RecallScope       string `env:"TUSK_MEMORY_RECALL_SCOPE" envDefault:"thread"`
	WorkingMemory     bool   `env:"TUSK_MEMORY_WORKING_MEMORY" envDefault:"false"`
	WorkingMemoryMode string `env:"TUSK_MEMORY_WORKING_MEMORY_MODE" envDefault:"enabled"`
	GenerateTitle     bool   `env:"TUSK_MEMORY_GENERATE_TITLE" envDefault:"false"`
	MaxContextTokens  int    `env:"TUSK_MEMORY_MAX_CONTEXT_TOKENS" envDefault:"0"`

	// EmbedInterval bounds how long a committed message may stay invisible to recall.
	EmbedInterval  time.Duration `env:"TUSK_MEMORY_EMBED_INTERVAL" envDefault:"2s"`
	EmbedBatchSize int           `env:"TUSK_MEMORY_EMBED_BATCH" envDefault:"30"`

	MaxSteps       int  `env:"TUSK_AGENT_MAX_STEPS" envDefault:"8"`
	PersistOnAbort bool `env:"TUSK_AGENT_PERSIST_ON_ABORT" envDefault:"false"`
	StreamBuffer   int  `env:"TUSK_AGENT_STREAM_BUFFER" envDefault:"16"`
	MaxToolOutput  int  `env:"TUSK_AGENT_MAX_TOOL_OUTPUT" envDefault:"4000"`
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c := mustLoad[MemoryConfig](ctx)
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid memory config")
	}
	return c
}

func (c MemoryConfig) Validate() error {
	switch core.RecallScope(c.RecallScope) {
	case core.ScopeThread, core.ScopeResource:
	default:
		return fmt.Errorf("invalid recall scope %q", c.RecallScope)
	}

	switch core.WorkingMemoryMode(c.WorkingMemoryMode) {
	case core.WorkingMemoryEnabled, core.WorkingMemoryToolCall:
	default:
		return fmt.Errorf("invalid working memory mode %q", c.WorkingMemoryMode)
	}

	if c.LastMessages < 0 || c.TopK < 0 || c.MessageRange < 0 {
		return fmt.Errorf("memory limits must not be negative")
	}
	return nil
}

// Options converts the env defaults into per-turn memory options.
func (c MemoryConfig) Options() core.MemoryOptions {
	return core.MemoryOptions{
		LastMessages:      c.LastMessages,
		SemanticRecall:    c.SemanticRecall,
		TopK:              c.TopK,
		MessageRange:      c.MessageRange,
		RecallScope:       core.RecallScope(c.RecallScope),
		WorkingMemory:     c.WorkingMemory,
		WorkingMemoryMode: core.WorkingMemoryMode(c.WorkingMemoryMode),
		GenerateTitle:     c.GenerateTitle,
		MaxContextTokens:  c.MaxContextTokens,
	}
}
