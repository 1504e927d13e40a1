package config

import (
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryConfig_Defaults(t *testing.T) {
	cfg, err := Load[MemoryConfig]()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	opts := cfg.Options()
	assert.Equal(t, 30, opts.LastMessages)
	assert.True(t, opts.SemanticRecall)
	assert.Equal(t, core.ScopeThread, opts.RecallScope)
	assert.Equal(t, core.WorkingMemoryEnabled, opts.WorkingMemoryMode)
	assert.Equal(t, 2*time.Second, cfg.EmbedInterval)
}

func TestLoadMemoryConfig_FromEnv(t *testing.T) {
	t.Setenv("TUSK_MEMORY_LAST_MESSAGES", "5")
	t.Setenv("TUSK_MEMORY_WORKING_MEMORY", "true")
	t.Setenv("TUSK_MEMORY_WORKING_MEMORY_MODE", "tool-call")
	t.Setenv("TUSK_MEMORY_EMBED_INTERVAL", "250ms")

	cfg, err := Load[MemoryConfig]()
	require.NoError(t, err)

	opts := cfg.Options()
	assert.Equal(t, 5, opts.LastMessages)
	assert.True(t, opts.WorkingMemory)
	assert.Equal(t, core.WorkingMemoryToolCall, opts.WorkingMemoryMode)
	assert.Equal(t, 250*time.Millisecond, cfg.EmbedInterval)
}

func TestMemoryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *MemoryConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *MemoryConfig) {}},
		{name: "bad scope", mutate: func(c *MemoryConfig) { c.RecallScope = "global" }, wantErr: true},
		{name: "bad mode", mutate: func(c *MemoryConfig) { c.WorkingMemoryMode = "auto" }, wantErr: true},
		{name: "negative", mutate: func(c *MemoryConfig) { c.TopK = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MemoryConfig{RecallScope: "thread", WorkingMemoryMode: "enabled"}
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestResolveBaseURL(t *testing.T) {
	url, err := ProviderConfig{Provider: ProviderOllama}.GetBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", url)

	url, err = ProviderConfig{Provider: ProviderCustom, BaseURL: "http://llm.local/v1/"}.GetBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://llm.local/v1", url)

	_, err = ProviderConfig{Provider: ProviderCustom}.GetBaseURL()
	assert.Error(t, err)

	_, err = EmbeddingConfig{Provider: "nope"}.GetBaseURL()
	assert.Error(t, err)

	url, err = ProviderConfig{Provider: ProviderAnthropic}.GetBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com", url)

	_, err = EmbeddingConfig{Provider: ProviderAnthropic}.GetBaseURL()
	assert.ErrorContains(t, err, "no embeddings")
}

func TestResolveRuntimePath(t *testing.T) {
	assert.Equal(t, "/srv/tusk", ResolveRuntimePath("/srv/tusk"))
	assert.NotEqual(t, ".tuskmem", ResolveRuntimePath(""))
}
