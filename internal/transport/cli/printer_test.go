package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/agent"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	memstore "github.com/sandevgo/tuskmem/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAI calls get_weather first and answers once the result is in.
type scriptedAI struct {
	mu sync.Mutex
	n  int
}

func (a *scriptedAI) ChatStream(ctx context.Context, req core.ChatRequest) (core.ChatStream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++

	last := req.Messages[len(req.Messages)-1]
	if last.Role == core.RoleTool {
		return &deltas{items: []core.ChatDelta{{Content: "It is "}, {Content: "70 degrees."}}}, nil
	}
	return &deltas{items: []core.ChatDelta{{ToolCalls: []core.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: core.FunctionCall{Name: "get_weather", Arguments: `{"city":"Seattle"}`},
	}}}}}, nil
}

type deltas struct {
	items []core.ChatDelta
}

func (d *deltas) Recv() (core.ChatDelta, error) {
	if len(d.items) == 0 {
		return core.ChatDelta{}, io.EOF
	}
	next := d.items[0]
	d.items = d.items[1:]
	return next, nil
}

func (d *deltas) Close() error { return nil }

func newEngine(t *testing.T) *agent.Engine {
	t.Helper()

	store := memstore.NewStore()
	tools := dispatch.New()
	require.NoError(t, tools.Declare(dispatch.MustFunc("get_weather", "Current weather",
		func(ctx context.Context, in struct {
			City string `json:"city"`
		}) (string, error) {
			return "70 degrees in " + in.City, nil
		})))

	engine, err := agent.NewEngine(&scriptedAI{}, memory.NewMemory(store, nil, nil, nil), store, tools, nil, agent.Config{
		MaxSteps:     4,
		StreamBuffer: 8,
		Memory:       core.MemoryOptions{LastMessages: 10},
	})
	require.NoError(t, err)
	return engine
}

func TestSend(t *testing.T) {
	engine := newEngine(t)
	var out bytes.Buffer

	res, err := Send(context.Background(), &out, engine, agent.TurnRequest{
		ThreadID:   "t1",
		ResourceID: "local",
		Input:      []string{"What's the weather in Seattle?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is 70 degrees.", res.Text)

	printed := out.String()
	assert.Contains(t, printed, `→ get_weather {"city":"Seattle"}`)
	assert.Contains(t, printed, `← get_weather`)
	assert.Contains(t, printed, `70 degrees in Seattle`)
	assert.Contains(t, printed, "It is 70 degrees.\n")
}

func TestSend_InvalidRequest(t *testing.T) {
	engine := newEngine(t)
	var out bytes.Buffer

	_, err := Send(context.Background(), &out, engine, agent.TurnRequest{ThreadID: "t1", ResourceID: "local", Input: []string{"  "}})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
	assert.Contains(t, out.String(), "error: ")
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &printer{w: &out}

	p.print(core.Chunk{Type: core.ChunkText, Text: "partial"})
	p.print(core.Chunk{Type: core.ChunkToolResult, ToolResult: &core.ToolResult{Name: "fetch_url", Error: "timeout"}})
	p.print(core.Chunk{Type: core.ChunkError, Err: errors.New("model went away")})

	printed := out.String()
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("partial\n")))
	assert.Contains(t, printed, "fetch_url")
	assert.Contains(t, printed, "timeout")
	assert.Contains(t, printed, "model went away")
}

func TestPreview(t *testing.T) {
	long := bytes.Repeat([]byte("a "), 200)
	got := preview(string(long))
	assert.Len(t, []rune(got), maxResultPreview)
	assert.Equal(t, "one two", preview("one\n  two"))
}
