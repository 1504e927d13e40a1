package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	cfg      *Config
	loadErr  error
	watchErr error
	updates  chan Config
}

func (m *memStorage) Load(ctx context.Context) (*Config, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.cfg, nil
}

func (m *memStorage) Watch(ctx context.Context) (<-chan Config, error) {
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	return m.updates, nil
}

func TestRegistry_Load(t *testing.T) {
	reg := NewRegistry(&memStorage{cfg: &Config{MCPServers: map[string]ServerConfig{
		"notes": {Command: "notes-server"},
		"web":   {URL: "http://localhost:8080/mcp"},
	}}})
	require.NoError(t, reg.Load(context.Background()))

	cfg, ok := reg.Get("notes")
	require.True(t, ok)
	assert.Equal(t, "notes-server", cfg.Command)
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	list := reg.List()
	assert.Len(t, list, 2)
	delete(list, "notes")
	_, ok = reg.Get("notes")
	assert.True(t, ok, "List returns a copy")
}

func TestRegistry_LoadErrors(t *testing.T) {
	loadErr := errors.New("disk gone")
	reg := NewRegistry(&memStorage{loadErr: loadErr})

	assert.ErrorIs(t, reg.Load(context.Background()), loadErr)
	assert.Empty(t, reg.List())
}

func TestRegistry_LoadNilServers(t *testing.T) {
	reg := NewRegistry(&memStorage{cfg: &Config{}})
	require.NoError(t, reg.Load(context.Background()))
	assert.NotNil(t, reg.List())
}

func TestRegistry_Watch(t *testing.T) {
	storage := &memStorage{
		cfg:     &Config{MCPServers: map[string]ServerConfig{"old": {Command: "x"}}},
		updates: make(chan Config),
	}
	reg := NewRegistry(storage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, reg.Load(ctx))

	out, err := reg.Watch(ctx)
	require.NoError(t, err)

	storage.updates <- Config{MCPServers: map[string]ServerConfig{"new": {Command: "y"}}}
	select {
	case cfg := <-out:
		assert.Contains(t, cfg.MCPServers, "new")
	case <-time.After(time.Second):
		t.Fatal("update not forwarded")
	}

	// the registry is updated before the config is forwarded
	_, ok := reg.Get("new")
	assert.True(t, ok)
	_, ok = reg.Get("old")
	assert.False(t, ok)

	close(storage.updates)
	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("output not closed with storage channel")
	}
}

func TestRegistry_WatchStopsOnCancel(t *testing.T) {
	reg := NewRegistry(&memStorage{updates: make(chan Config)})
	ctx, cancel := context.WithCancel(context.Background())

	out, err := reg.Watch(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRegistry_WatchError(t *testing.T) {
	watchErr := errors.New("no watcher")
	_, err := NewRegistry(&memStorage{watchErr: watchErr}).Watch(context.Background())
	assert.ErrorIs(t, err, watchErr)
}
