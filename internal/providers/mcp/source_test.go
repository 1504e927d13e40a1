package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	tools   []mcpproto.Tool
	listErr error

	mu     sync.Mutex
	calls  []mcpproto.CallToolRequest
	closed atomic.Bool
}

func (f *fakeSession) ListTools(ctx context.Context, req mcpproto.ListToolsRequest) (*mcpproto.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcpproto.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) CallTool(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)
	if text == "fail" {
		return mcpproto.NewToolResultError("refused"), nil
	}
	return mcpproto.NewToolResultText("echo: " + text), nil
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func echoServer() *fakeSession {
	return &fakeSession{tools: []mcpproto.Tool{
		mcpproto.NewTool("echo",
			mcpproto.WithDescription("Echo the text back"),
			mcpproto.WithString("text", mcpproto.Required()),
		),
	}}
}

// sessionsByCommand connects ServerConfig.Command to the matching session.
type sessionsByCommand struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	dials    map[string]int
}

func (s *sessionsByCommand) factory(TransportType) (Transport, error) {
	return func(ctx context.Context, cfg ServerConfig) (Session, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dials[cfg.Command]++
		sess, ok := s.sessions[cfg.Command]
		if !ok {
			return nil, errors.New("connection refused")
		}
		return sess, nil
	}, nil
}

func writeConfig(t *testing.T, path string, cfg Config) {
	t.Helper()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func newTestSource(t *testing.T, cfg Config, sessions map[string]*fakeSession) (*Source, *dispatch.Dispatcher, *sessionsByCommand) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mcp_config.json")
	writeConfig(t, path, cfg)

	dialer := &sessionsByCommand{sessions: sessions, dials: make(map[string]int)}
	tools := dispatch.New()
	src := NewSource(NewRegistry(NewFileStorage(path)), NewPoolWithFactory(dialer.factory), tools)
	return src, tools, dialer
}

func TestSource_DeclaresServerTools(t *testing.T) {
	ctx := context.Background()
	notes := echoServer()
	src, tools, _ := newTestSource(t, Config{MCPServers: map[string]ServerConfig{
		"notes": {Command: "notes-server"},
	}}, map[string]*fakeSession{"notes-server": notes})

	require.NoError(t, src.Load(ctx))
	assert.Equal(t, []string{"notes"}, src.Servers())
	require.True(t, tools.Has("notes__echo"))

	defs := tools.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "Echo the text back", defs[0].Function.Description)
	assert.Contains(t, string(defs[0].Function.Parameters), `"text"`)

	out, err := tools.Invoke(ctx, "notes__echo", `{"text":"hi"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `"echo: hi"`, string(out))
	require.Len(t, notes.calls, 1)
	assert.Equal(t, "echo", notes.calls[0].Params.Name)

	// input schema comes from the server
	_, err = tools.Invoke(ctx, "notes__echo", `{}`)
	var sve *core.SchemaValidationError
	assert.ErrorAs(t, err, &sve)

	// error results become execution errors
	_, err = tools.Invoke(ctx, "notes__echo", `{"text":"fail"}`)
	var tee *core.ToolExecutionError
	require.ErrorAs(t, err, &tee)
	assert.ErrorContains(t, err, "refused")

	require.NoError(t, src.Shutdown(ctx))
	assert.False(t, tools.Has("notes__echo"))
	assert.True(t, notes.closed.Load())
}

func TestSource_SkipsBrokenServers(t *testing.T) {
	ctx := context.Background()
	broken := echoServer()
	broken.listErr = errors.New("list failed")

	src, tools, dialer := newTestSource(t, Config{MCPServers: map[string]ServerConfig{
		"ok":       {Command: "ok-server"},
		"down":     {Command: "missing"},
		"broken":   {Command: "broken-server"},
		"disabled": {Command: "ok-server", Disabled: true},
		"invalid":  {},
	}}, map[string]*fakeSession{"ok-server": echoServer(), "broken-server": broken})

	require.NoError(t, src.Load(ctx))
	assert.Equal(t, []string{"ok"}, src.Servers())
	assert.True(t, tools.Has("ok__echo"))
	assert.False(t, tools.Has("broken__echo"))
	assert.True(t, broken.closed.Load())
	assert.Equal(t, 1, dialer.dials["ok-server"])
}

func TestSource_Sync(t *testing.T) {
	ctx := context.Background()
	first, second := echoServer(), echoServer()
	src, tools, dialer := newTestSource(t, Config{MCPServers: map[string]ServerConfig{
		"notes": {Command: "v1"},
	}}, map[string]*fakeSession{"v1": first, "v2": second})
	require.NoError(t, src.Load(ctx))

	// unchanged config keeps the session
	src.Sync(ctx, map[string]ServerConfig{"notes": {Command: "v1"}})
	assert.Equal(t, 1, dialer.dials["v1"])

	// changed config reconnects
	src.Sync(ctx, map[string]ServerConfig{"notes": {Command: "v2"}})
	assert.True(t, first.closed.Load())
	assert.True(t, tools.Has("notes__echo"))
	_, err := tools.Invoke(ctx, "notes__echo", `{"text":"x"}`)
	require.NoError(t, err)
	assert.Len(t, second.calls, 1)

	// removal undeclares
	src.Sync(ctx, map[string]ServerConfig{})
	assert.False(t, tools.Has("notes__echo"))
	assert.Empty(t, src.Servers())
	assert.True(t, second.closed.Load())
}

func TestSource_StartFollowsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_config.json")
	writeConfig(t, path, Config{MCPServers: map[string]ServerConfig{}})

	storage := NewFileStorage(path)
	storage.interval = 10 * time.Millisecond
	dialer := &sessionsByCommand{sessions: map[string]*fakeSession{"notes-server": echoServer()}, dials: make(map[string]int)}
	tools := dispatch.New()
	src := NewSource(NewRegistry(storage), NewPoolWithFactory(dialer.factory), tools)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- src.Start(ctx) }()

	writeConfig(t, path, Config{MCPServers: map[string]ServerConfig{"notes": {Command: "notes-server"}}})

	// keep moving mtime forward in case the watcher started after the write
	bump := time.Now()
	assert.Eventually(t, func() bool {
		if tools.Has("notes__echo") {
			return true
		}
		bump = bump.Add(time.Minute)
		_ = os.Chtimes(path, bump, bump)
		return false
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}
}

func TestToolName(t *testing.T) {
	tests := []struct {
		server, tool, want string
	}{
		{"notes", "echo", "notes__echo"},
		{"my server", "read.file", "my_server__read_file"},
		{"a", strings.Repeat("x", 100), "a__" + strings.Repeat("x", 61)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToolName(tt.server, tt.tool))
	}
}

func TestServerConfig_GetTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		want    TransportType
		wantErr bool
	}{
		{name: "stdio", cfg: ServerConfig{Command: "npx"}, want: TransportStdio},
		{name: "http", cfg: ServerConfig{URL: "http://localhost:8080/mcp"}, want: TransportHTTP},
		{name: "sse", cfg: ServerConfig{URL: "http://localhost:8080/sse", Type: "sse"}, want: TransportSSE},
		{name: "url wins", cfg: ServerConfig{URL: "http://x", Command: "npx"}, want: TransportHTTP},
		{name: "empty", cfg: ServerConfig{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.GetTransport()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
