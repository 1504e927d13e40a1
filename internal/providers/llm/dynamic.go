package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
)

// DynamicProvider lets the model be switched at runtime. Turns already
// streaming keep the provider they started with.
type DynamicProvider struct {
	config  config.ProviderConfig
	current atomic.Pointer[ChatProvider]
	mu      sync.Mutex
}

func NewDynamicProvider(ctx context.Context, cfg *config.ProviderConfig) (*DynamicProvider, error) {
	d := &DynamicProvider{
		config: *cfg,
	}

	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create initial provider: %w", err)
	}

	d.current.Store(&provider)
	return d, nil
}

func (d *DynamicProvider) ChatStream(ctx context.Context, req core.ChatRequest) (core.ChatStream, error) {
	return d.load().ChatStream(ctx, req)
}

func (d *DynamicProvider) Models(ctx context.Context) ([]string, error) {
	return d.load().Models(ctx)
}

func (d *DynamicProvider) GetModel() string {
	return d.load().Model()
}

func (d *DynamicProvider) SetModel(ctx context.Context, model string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.config
	cfg.Model = model

	provider, err := NewProvider(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	d.config = cfg
	d.current.Store(&provider)
	return nil
}

func (d *DynamicProvider) load() ChatProvider {
	return *d.current.Load()
}
