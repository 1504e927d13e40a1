package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	memstore "github.com/sandevgo/tuskmem/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

// reply is one scripted model pass.
type reply struct {
	deltas []core.ChatDelta
	// openErr fails ChatStream, recvErr fails Recv after the deltas.
	openErr error
	recvErr error
	// block waits for ctx cancellation after the deltas.
	block bool
}

// fakeAI answers each pass with respond, or with the scripted replies in
// order, repeating the last one.
type fakeAI struct {
	mu       sync.Mutex
	replies  []reply
	respond  func(req core.ChatRequest) reply
	requests []core.ChatRequest
}

func (f *fakeAI) ChatStream(ctx context.Context, req core.ChatRequest) (core.ChatStream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var r reply
	if f.respond != nil {
		r = f.respond(req)
	} else {
		r = f.replies[min(len(f.requests)-1, len(f.replies)-1)]
	}
	f.mu.Unlock()

	if r.openErr != nil {
		return nil, r.openErr
	}
	return &fakeStream{ctx: ctx, r: r}, nil
}

func (f *fakeAI) Requests() []core.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.ChatRequest(nil), f.requests...)
}

type fakeStream struct {
	ctx context.Context
	r   reply
	pos int
}

func (s *fakeStream) Recv() (core.ChatDelta, error) {
	if s.pos < len(s.r.deltas) {
		d := s.r.deltas[s.pos]
		s.pos++
		return d, nil
	}
	if s.r.block {
		<-s.ctx.Done()
		return core.ChatDelta{}, s.ctx.Err()
	}
	if s.r.recvErr != nil {
		return core.ChatDelta{}, s.r.recvErr
	}
	return core.ChatDelta{}, io.EOF
}

func (s *fakeStream) Close() error { return nil }

func text(parts ...string) reply {
	r := reply{}
	for _, p := range parts {
		r.deltas = append(r.deltas, core.ChatDelta{Content: p})
	}
	return r
}

func callTool(id, name, args string) reply {
	return reply{deltas: []core.ChatDelta{{ToolCalls: []core.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: core.FunctionCall{Name: name, Arguments: args},
	}}}}}
}

// toolThenAnswer calls name once per turn, then answers with the tool output.
func toolThenAnswer(name, args string) func(core.ChatRequest) reply {
	return toolThen(name, args, func(out string) reply { return text(out) })
}

// toolThen calls name once per turn, then lets answer phrase the output.
func toolThen(name, args string, answer func(out string) reply) func(core.ChatRequest) reply {
	n := 0
	return func(req core.ChatRequest) reply {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == core.RoleTool {
			res := last.ToolResult()
			if res.IsError() {
				return text("tool failed: " + res.Error)
			}
			var out string
			if err := json.Unmarshal(res.Output, &out); err != nil {
				out = string(res.Output)
			}
			return answer(out)
		}
		n++
		return callTool(fmt.Sprintf("call_%d", n), name, args)
	}
}

// joinText concatenates the text chunks.
func joinText(chunks []core.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		if c.Type == core.ChunkText {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// failingStore breaks Commit only, so assembly still works.
type failingStore struct {
	core.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) Commit(context.Context, core.Batch) ([]core.Message, error) {
	return nil, core.NewStorageError("commit", errDiskFull)
}

type countingIndexer struct {
	mu sync.Mutex
	n  int
}

func (c *countingIndexer) Notify() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingIndexer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newMemStore() core.Store {
	return memstore.NewStore()
}

type harness struct {
	engine  *Engine
	store   core.Store
	ai      *fakeAI
	tools   *dispatch.Dispatcher
	indexer *countingIndexer
}

func testConfig() Config {
	return Config{
		MaxSteps:      4,
		StreamBuffer:  16,
		MaxToolOutput: 4000,
		Memory:        core.MemoryOptions{LastMessages: 20},
	}
}

func newHarness(t *testing.T, ai *fakeAI, store core.Store, cfg Config) *harness {
	t.Helper()

	if store == nil {
		store = memstore.NewStore()
	}
	tools := dispatch.New()
	indexer := &countingIndexer{}
	mem := memory.NewMemory(store, nil, nil, nil)

	engine, err := NewEngine(ai, mem, store, tools, indexer, cfg)
	require.NoError(t, err)

	return &harness{
		engine:  engine,
		store:   store,
		ai:      ai,
		tools:   tools,
		indexer: indexer,
	}
}

func (h *harness) messages(t *testing.T, threadID string) []core.Message {
	t.Helper()

	msgs, err := h.store.Query(context.Background(), threadID, core.QueryOptions{})
	require.NoError(t, err)
	return msgs
}

func roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func drain(s *Stream) []core.Chunk {
	var chunks []core.Chunk
	for c := range s.Chunks() {
		chunks = append(chunks, c)
	}
	return chunks
}

func chunkTypes(chunks []core.Chunk) []core.ChunkType {
	out := make([]core.ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}
