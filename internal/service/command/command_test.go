package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	memstore "github.com/sandevgo/tuskmem/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModels struct {
	model string
	err   error
}

func (f *fakeModels) GetModel() string { return f.model }

func (f *fakeModels) SetModel(ctx context.Context, model string) error {
	if f.err != nil {
		return f.err
	}
	f.model = model
	return nil
}

type fakeServers []string

func (f fakeServers) Servers() []string { return f }

type fixture struct {
	router  *Router
	store   core.Store
	mem     *memory.Memory
	session *Session
	models  *fakeModels
}

func newFixture(t *testing.T, servers fakeServers) *fixture {
	t.Helper()

	store := memstore.NewStore()
	mem := memory.NewMemory(store, nil, nil, nil)
	session := NewSession("t1", "alice")
	models := &fakeModels{model: "gpt-4o-mini"}

	tools := dispatch.New()
	require.NoError(t, tools.Declare(dispatch.Tool{
		Name:        "get_weather",
		Description: "Current weather\nfor a city",
		Execute:     func(context.Context, json.RawMessage) (any, error) { return "sunny", nil },
	}))

	var lister ServerLister
	if servers != nil {
		lister = servers
	}
	router := New(NewCommands(Deps{
		Provider: "openai",
		Models:   models,
		Tools:    tools,
		Servers:  lister,
		Memory:   mem,
		Session:  session,
	}))
	return &fixture{router: router, store: store, mem: mem, session: session, models: models}
}

func TestRouter_Execute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, handled := f.router.Execute(ctx, "t1", "what is the weather?")
	assert.False(t, handled)

	out, handled := f.router.Execute(ctx, "t1", "/nope")
	assert.True(t, handled)
	assert.Contains(t, out, "unknown command: /nope")

	out, handled = f.router.Execute(ctx, "t1", "/help")
	assert.True(t, handled)
	for _, name := range []string{"/history", "/memory", "/model", "/thread", "/tools"} {
		assert.Contains(t, out, name)
	}
	assert.NotContains(t, out, "/mcp")

	names := make([]string, 0)
	for _, cmd := range f.router.ListCommands() {
		names = append(names, cmd.Name())
	}
	assert.IsIncreasing(t, names)
}

func TestToolsAndMCP(t *testing.T) {
	f := newFixture(t, fakeServers{"notes"})
	ctx := context.Background()

	out, _ := f.router.Execute(ctx, "t1", "/tools")
	assert.Contains(t, out, "get_weather  Current weather for a city")

	out, _ = f.router.Execute(ctx, "t1", "/mcp")
	assert.Contains(t, out, "notes")
}

func TestModelCommand(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, _ := f.router.Execute(ctx, "t1", "/model")
	assert.Contains(t, out, "gpt-4o-mini")
	assert.Contains(t, out, "openai")

	out, _ = f.router.Execute(ctx, "t1", "/model gpt-4o")
	assert.Contains(t, out, "Model changed to gpt-4o")
	assert.Equal(t, "gpt-4o", f.models.model)

	f.models.err = errors.New("no such model")
	out, _ = f.router.Execute(ctx, "t1", "/model bogus")
	assert.Contains(t, out, "no such model")
	assert.Equal(t, "gpt-4o", f.models.model)
}

func TestMemoryCommand(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, _ := f.router.Execute(ctx, "t1", "/memory")
	assert.Contains(t, out, "empty")

	out, _ = f.router.Execute(ctx, "t1", `/memory set city=Seattle days=3`)
	assert.Contains(t, out, `city = "Seattle"`)
	assert.Contains(t, out, "days = 3")

	wm, err := f.mem.WorkingMemory(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Seattle", "days": float64(3)}, wm.Data)
	assert.Equal(t, "alice", wm.ResourceID)

	_, _ = f.router.Execute(ctx, "t1", "/memory del days")
	wm, err = f.mem.WorkingMemory(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Seattle"}, wm.Data)

	_, _ = f.router.Execute(ctx, "t1", "/memory clear")
	wm, err = f.mem.WorkingMemory(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, wm.Data)

	out, _ = f.router.Execute(ctx, "t1", "/memory set novalue")
	assert.Contains(t, out, "usage:")
}

func TestParsePatch(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		args    []string
		want    core.WorkingMemoryPatch
		wantErr bool
	}{
		{
			name: "json and plain values",
			op:   "set",
			args: []string{"a=1", "b=true", "c=plain text", `d={"x":1}`, "e=null"},
			want: core.WorkingMemoryPatch{Set: map[string]any{
				"a": float64(1), "b": true, "c": "plain text", "d": map[string]any{"x": float64(1)}, "e": "null",
			}},
		},
		{name: "del", op: "del", args: []string{"a"}, want: core.WorkingMemoryPatch{Set: map[string]any{"a": nil}}},
		{name: "clear", op: "clear", want: core.WorkingMemoryPatch{Set: map[string]any{}, Replace: true}},
		{name: "set without pair", op: "set", args: []string{"a"}, wantErr: true},
		{name: "set empty key", op: "set", args: []string{"=1"}, wantErr: true},
		{name: "unknown", op: "drop", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePatch(tt.op, tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUsage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryAndThreads(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, _ := f.router.Execute(ctx, "t1", "/history")
	assert.Contains(t, out, "none")

	call := core.ToolCall{ID: "c1", Type: "function", Function: core.FunctionCall{Name: "get_weather", Arguments: `{"city":"Seattle"}`}}
	_, err := f.store.Commit(ctx, core.Batch{
		ThreadID:   "t1",
		ResourceID: "alice",
		Title:      "Weather in Seattle",
		Messages: []core.Message{
			core.NewTextMessage(core.RoleUser, "weather in Seattle?"),
			{Role: core.RoleAssistant, Parts: []core.Part{core.ToolCallPart(call)}},
			{Role: core.RoleTool, ToolCallID: "c1", Parts: []core.Part{core.ToolResultPart(core.ToolResult{
				ToolCallID: "c1", Name: "get_weather", Output: []byte(`"70 degrees"`),
			})}},
			core.NewTextMessage(core.RoleAssistant, "It is 70 degrees."),
		},
	})
	require.NoError(t, err)

	out, _ = f.router.Execute(ctx, "t1", "/history")
	assert.Contains(t, out, "weather in Seattle?")
	assert.Contains(t, out, `get_weather {"city":"Seattle"}`)
	assert.Contains(t, out, "70 degrees")
	assert.Contains(t, out, "It is 70 degrees.")

	out, _ = f.router.Execute(ctx, "t1", "/history 1")
	assert.NotContains(t, out, "weather in Seattle?")
	assert.Contains(t, out, "It is 70 degrees.")

	out, _ = f.router.Execute(ctx, "t1", "/history zero")
	assert.Contains(t, out, "limit must be a positive number")

	out, _ = f.router.Execute(ctx, "t1", "/thread")
	assert.Contains(t, out, "* t1")
	assert.Contains(t, out, "Weather in Seattle")

	_, _ = f.router.Execute(ctx, "t1", "/thread t2")
	assert.Equal(t, "t2", f.session.ThreadID())
}
