package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sandevgo/tuskmem/pkg/log"
)

const defaultPollInterval = time.Second

// FileStorage keeps the server config in a JSON file and polls it for
// changes.
type FileStorage struct {
	path     string
	interval time.Duration
	mu       sync.RWMutex
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path:     path,
		interval: defaultPollInterval,
	}
}

// Load reads the config, writing an empty one when the file is missing.
func (c *FileStorage) Load(ctx context.Context) (*Config, error) {
	c.mu.RLock()
	data, err := os.ReadFile(c.path)
	c.mu.RUnlock()

	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(filepath.Dir(c.path)); statErr != nil {
			return nil, fmt.Errorf("config directory does not exist: %w", statErr)
		}

		log.FromCtx(ctx).Info().Str("path", c.path).Msg("mcp config not found, creating default")
		cfg := &Config{MCPServers: make(map[string]ServerConfig)}
		if err := c.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mcp config: %w", err)
	}

	return parseConfig(data)
}

func (c *FileStorage) Save(ctx context.Context, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFileAtomic(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path, so a watcher never reads a half written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Watch emits the parsed config every time the file's mtime moves forward.
// Unparsable content is logged and skipped.
func (c *FileStorage) Watch(ctx context.Context) (<-chan Config, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	lastMod := info.ModTime()

	updates := make(chan Config)
	go func() {
		defer close(updates)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			info, err := os.Stat(c.path)
			if err != nil {
				// deleted; the next write counts as a change
				lastMod = time.Time{}
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}

			c.mu.RLock()
			data, err := os.ReadFile(c.path)
			c.mu.RUnlock()
			if err != nil {
				continue
			}
			lastMod = info.ModTime()

			cfg, err := parseConfig(data)
			if err != nil {
				log.FromCtx(ctx).Error().Err(err).Msg("failed to parse mcp config")
				continue
			}

			select {
			case updates <- *cfg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, nil
}

func parseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mcp config: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerConfig)
	}
	return cfg, nil
}
