package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/pkg/log"
)

const maxToolName = 64

type Timeouts struct {
	Connect  time.Duration
	ToolList time.Duration
	ToolCall time.Duration
}

func NewDefaultTimeouts() *Timeouts {
	return &Timeouts{
		Connect:  30 * time.Second,
		ToolList: 5 * time.Second,
		ToolCall: 2 * time.Minute,
	}
}

// Source keeps the dispatcher in line with the configured MCP servers. Tool
// names are prefixed with the server name.
type Source struct {
	registry *Registry
	pool     *Pool
	tools    *dispatch.Dispatcher
	timeouts *Timeouts

	mu       sync.Mutex
	active   map[string]ServerConfig
	declared map[string][]string
}

func NewSource(registry *Registry, pool *Pool, tools *dispatch.Dispatcher) *Source {
	return &Source{
		registry: registry,
		pool:     pool,
		tools:    tools,
		timeouts: NewDefaultTimeouts(),
		active:   make(map[string]ServerConfig),
		declared: make(map[string][]string),
	}
}

// Load reads the config and connects every enabled server. Servers that
// fail to connect are logged and skipped.
func (s *Source) Load(ctx context.Context) error {
	if err := s.registry.Load(ctx); err != nil {
		return err
	}
	s.Sync(ctx, s.registry.List())
	return nil
}

// Start follows config file changes until ctx is done.
func (s *Source) Start(ctx context.Context) error {
	updates, err := s.registry.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch mcp config: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-updates:
			if !ok {
				return nil
			}
			s.Sync(ctx, cfg.MCPServers)
		}
	}
}

func (s *Source) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for name := range s.declared {
		s.undeclare(name)
	}
	s.active = make(map[string]ServerConfig)
	s.mu.Unlock()

	return s.pool.Close()
}

// Servers returns the names of connected servers.
func (s *Source) Servers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.active))
}

// Sync disconnects removed or changed servers and connects new ones.
func (s *Source) Sync(ctx context.Context, desired map[string]ServerConfig) {
	logger := log.FromCtx(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, current := range s.active {
		next, ok := desired[name]
		if ok && !next.Disabled && reflect.DeepEqual(current, next) {
			continue
		}
		logger.Info().Str("server", name).Msg("disconnecting mcp server")
		s.undeclare(name)
		delete(s.active, name)
		if err := s.pool.Del(name); err != nil {
			logger.Warn().Err(err).Str("server", name).Msg("failed to close mcp server")
		}
	}

	type connected struct {
		name  string
		cfg   ServerConfig
		tools []dispatch.Tool
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []connected
	)
	for name, cfg := range desired {
		if _, ok := s.active[name]; ok || cfg.Disabled {
			continue
		}
		wg.Go(func() {
			tools, err := s.connect(ctx, name, cfg)
			if err != nil {
				logger.Error().Err(err).Str("server", name).Msg("failed to start mcp server")
				return
			}
			mu.Lock()
			results = append(results, connected{name: name, cfg: cfg, tools: tools})
			mu.Unlock()
		})
	}
	wg.Wait()

	for _, r := range results {
		s.active[r.name] = r.cfg
		s.declare(ctx, r.name, r.tools)
		logger.Info().Str("server", r.name).Int("tools", len(r.tools)).Msg("mcp server connected")
	}
}

func (s *Source) connect(ctx context.Context, name string, cfg ServerConfig) ([]dispatch.Tool, error) {
	log.FromCtx(ctx).Info().
		Str("server", name).
		Str("url", cfg.URL).
		Str("command", cfg.Command).
		Msg("starting mcp server")

	connectCtx, cancel := context.WithTimeout(ctx, s.timeouts.Connect)
	defer cancel()

	cli, err := s.pool.Add(connectCtx, name, cfg)
	if err != nil {
		return nil, err
	}

	listCtx, cancelList := context.WithTimeout(ctx, s.timeouts.ToolList)
	defer cancelList()

	resp, err := cli.ListTools(listCtx, mcpproto.ListToolsRequest{})
	if err != nil {
		_ = s.pool.Del(name)
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]dispatch.Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		tools = append(tools, dispatch.Tool{
			Name:        ToolName(name, t.Name),
			Description: t.Description,
			InputSchema: inputSchema(t),
			Execute:     s.caller(name, t.Name),
		})
	}
	return tools, nil
}

// declare must be called with s.mu held.
func (s *Source) declare(ctx context.Context, server string, tools []dispatch.Tool) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		err := s.tools.Declare(t)
		if err != nil {
			// the server's schema did not resolve; accept any object instead
			log.FromCtx(ctx).Warn().Err(err).Str("tool", t.Name).Msg("falling back to an open input schema")
			t.InputSchema = nil
			err = s.tools.Declare(t)
		}
		if err != nil {
			log.FromCtx(ctx).Error().Err(err).Str("tool", t.Name).Msg("failed to declare mcp tool")
			continue
		}
		names = append(names, t.Name)
	}
	s.declared[server] = names
}

// undeclare must be called with s.mu held.
func (s *Source) undeclare(server string) {
	for _, name := range s.declared[server] {
		s.tools.Remove(name)
	}
	delete(s.declared, server)
}

// caller resolves the session on every call so a reconnect is picked up.
func (s *Source) caller(server, tool string) dispatch.Executor {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		cli, ok := s.pool.Get(server)
		if !ok || cli.IsClosed() {
			return nil, fmt.Errorf("server %s is not available", server)
		}

		argsMap := make(map[string]any)
		if len(args) > 0 {
			if err := json.Unmarshal(args, &argsMap); err != nil {
				return nil, fmt.Errorf("invalid json arguments: %w", err)
			}
		}

		req := mcpproto.CallToolRequest{}
		req.Params.Name = tool
		req.Params.Arguments = argsMap

		callCtx, cancel := context.WithTimeout(ctx, s.timeouts.ToolCall)
		defer cancel()

		res, err := cli.CallTool(callCtx, req)
		if err != nil {
			return nil, err
		}

		output := resultText(res)
		if res.IsError {
			return nil, errors.New(output)
		}
		if output == "" && res.StructuredContent != nil {
			return res.StructuredContent, nil
		}
		return output, nil
	}
}

func resultText(res *mcpproto.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcpproto.TextContent:
			parts = append(parts, c.Text)
		case *mcpproto.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func inputSchema(t mcpproto.Tool) *jsonschema.Schema {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		var err error
		raw, err = json.Marshal(t.InputSchema)
		if err != nil {
			return nil
		}
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return &schema
}

// ToolName builds the dispatcher name of an MCP tool. Model APIs only accept
// [A-Za-z0-9_-] up to 64 characters.
func ToolName(server, tool string) string {
	name := server + "__" + tool
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if len(out) > maxToolName {
		out = out[:maxToolName]
	}
	return out
}
