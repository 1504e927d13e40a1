package mcp

import (
	"context"
	"maps"
	"sync"
)

type Storage interface {
	Load(ctx context.Context) (*Config, error)
	Watch(ctx context.Context) (<-chan Config, error)
}

// Registry is the last known content of the server config.
type Registry struct {
	storage Storage
	mu      sync.RWMutex
	servers map[string]ServerConfig
}

func NewRegistry(storage Storage) *Registry {
	return &Registry{
		storage: storage,
		servers: make(map[string]ServerConfig),
	}
}

func (r *Registry) Load(ctx context.Context) error {
	cfg, err := r.storage.Load(ctx)
	if err != nil {
		return err
	}

	r.set(cfg.MCPServers)
	return nil
}

func (r *Registry) Get(name string) (ServerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.servers[name]
	return cfg, ok
}

func (r *Registry) List() map[string]ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.servers)
}

func (r *Registry) set(servers map[string]ServerConfig) {
	if servers == nil {
		servers = make(map[string]ServerConfig)
	}
	r.mu.Lock()
	r.servers = servers
	r.mu.Unlock()
}

// Watch forwards storage updates after applying them to the registry.
func (r *Registry) Watch(ctx context.Context) (<-chan Config, error) {
	ch, err := r.storage.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Config)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}
				r.set(cfg.MCPServers)

				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
