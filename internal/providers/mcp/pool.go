package mcp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

type TransportFactory func(TransportType) (Transport, error)

// Pool owns one live session per server name.
type Pool struct {
	mu               sync.RWMutex
	clients          map[string]*ManagedClient
	transportFactory TransportFactory
}

func NewPool() *Pool {
	return NewPoolWithFactory(NewTransport)
}

func NewPoolWithFactory(factory TransportFactory) *Pool {
	return &Pool{
		clients:          make(map[string]*ManagedClient),
		transportFactory: factory,
	}
}

// Add connects name and replaces any previous session under that name.
func (p *Pool) Add(ctx context.Context, name string, cfg ServerConfig) (*ManagedClient, error) {
	tType, err := cfg.GetTransport()
	if err != nil {
		return nil, err
	}

	transport, err := p.transportFactory(tType)
	if err != nil {
		return nil, err
	}

	session, err := transport(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport creation failed: %w", err)
	}

	managed := &ManagedClient{
		Session: session,
		name:    name,
	}

	p.mu.Lock()
	old, exists := p.clients[name]
	p.clients[name] = managed
	p.mu.Unlock()

	if exists {
		go old.Close()
	}
	return managed, nil
}

func (p *Pool) Del(name string) error {
	p.mu.Lock()
	cli, exists := p.clients[name]
	delete(p.clients, name)
	p.mu.Unlock()

	if !exists {
		return nil
	}
	return cli.Close()
}

func (p *Pool) Get(name string) (*ManagedClient, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cli, ok := p.clients[name]
	return cli, ok
}

func (p *Pool) All() map[string]*ManagedClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.clients)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*ManagedClient)
	p.mu.Unlock()

	var errs []error
	for _, cli := range clients {
		if err := cli.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
