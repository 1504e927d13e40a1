// Package agent runs conversation turns: it assembles memory, streams the
// model, executes tool calls and commits the turn atomically.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// Indexer is told when new messages were committed.
type Indexer interface {
	Notify()
}

type Config struct {
	MaxSteps       int
	PersistOnAbort bool
	StreamBuffer   int
	MaxToolOutput  int
	// Memory is used when a request does not carry its own options.
	Memory core.MemoryOptions
}

func NewConfig(c *config.MemoryConfig) Config {
	return Config{
		MaxSteps:       c.MaxSteps,
		PersistOnAbort: c.PersistOnAbort,
		StreamBuffer:   c.StreamBuffer,
		MaxToolOutput:  c.MaxToolOutput,
		Memory:         c.Options(),
	}
}

type Options struct {
	// Memory overrides the engine defaults for this turn.
	Memory *core.MemoryOptions
	// OutputSchema requests structured output instead of free text.
	OutputSchema *jsonschema.Schema
	OutputName   string
}

type TurnRequest struct {
	ThreadID   string
	ResourceID string
	// Input holds one or more user messages. Each becomes its own message.
	Input   []string
	Options Options
}

type Engine struct {
	ai      core.AIProvider
	memory  *memory.Memory
	store   core.MessageStore
	tools   *dispatch.Dispatcher
	indexer Indexer
	cfg     Config
}

// NewEngine registers the working memory tool on tools. indexer may be nil.
func NewEngine(
	ai core.AIProvider,
	mem *memory.Memory,
	store core.MessageStore,
	tools *dispatch.Dispatcher,
	indexer Indexer,
	cfg Config,
) (*Engine, error) {
	if tools == nil {
		tools = dispatch.New()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 8
	}
	if err := tools.Declare(workingMemoryTool()); err != nil {
		return nil, fmt.Errorf("failed to declare working memory tool: %w", err)
	}

	return &Engine{
		ai:      ai,
		memory:  mem,
		store:   store,
		tools:   tools,
		indexer: indexer,
		cfg:     cfg,
	}, nil
}

func (e *Engine) Tools() *dispatch.Dispatcher {
	return e.tools
}

// Start validates req and runs the turn in the background. Cancelling ctx
// aborts generation.
func (e *Engine) Start(ctx context.Context, req TurnRequest) (*Stream, error) {
	if req.ThreadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", core.ErrInvalidRequest)
	}
	if req.ResourceID == "" {
		return nil, fmt.Errorf("%w: resource id is required", core.ErrInvalidRequest)
	}
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("%w: input is required", core.ErrInvalidRequest)
	}
	for i, in := range req.Input {
		if strings.TrimSpace(in) == "" {
			return nil, fmt.Errorf("%w: input %d is empty", core.ErrInvalidRequest, i)
		}
	}

	var schema *jsonschema.Resolved
	if req.Options.OutputSchema != nil {
		var err error
		schema, err = req.Options.OutputSchema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: output schema: %v", core.ErrInvalidRequest, err)
		}
	}

	opts := e.cfg.Memory
	if req.Options.Memory != nil {
		opts = *req.Options.Memory
	}

	t := newTurn(req, opts, schema)
	s := newStream(e.cfg.StreamBuffer)
	ctx = log.WithComponent(ctx, "agent")
	go e.run(ctx, t, s)
	return s, nil
}

// Run starts a turn and waits for it, discarding the chunks.
func (e *Engine) Run(ctx context.Context, req TurnRequest) (*core.TurnResult, error) {
	s, err := e.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Collect()
}

func (e *Engine) run(ctx context.Context, t *turn, s *Stream) {
	logger := log.FromCtx(ctx)

	res, err := e.execute(ctx, t, s)
	if err != nil {
		t.setState(ctx, core.StateErrored)
		if res == nil {
			res = t.result(nil)
		}
		res.State = core.StateErrored
		logger.Error().Err(err).Str("thread", t.req.ThreadID).Msg("turn failed")
		s.emit(core.Chunk{Type: core.ChunkError, Err: err})
		s.finish(res, err)
		return
	}

	s.emit(core.Chunk{Type: core.ChunkDone, Result: res})
	s.finish(res, nil)
}

func (e *Engine) execute(ctx context.Context, t *turn, s *Stream) (*core.TurnResult, error) {
	logger := log.FromCtx(ctx)

	t.setState(ctx, core.StateAssembling)
	window, err := e.memory.Assemble(ctx, memory.AssembleRequest{
		ThreadID:   t.req.ThreadID,
		ResourceID: t.req.ResourceID,
		Input:      t.req.Input,
		Options:    t.opts,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, &core.GenerationAbortedError{Err: ctx.Err()}
		}
		return nil, core.NewStorageError("assemble", err)
	}
	t.window = window

	for step := 1; ; step++ {
		t.setState(ctx, core.StateGenerating)

		req := core.ChatRequest{
			System:       window.System,
			Messages:     t.history(),
			ResponseName: t.req.Options.OutputName,
		}
		if t.schema != nil {
			req.ResponseSchema, err = json.Marshal(t.req.Options.OutputSchema)
			if err != nil {
				return nil, &core.GenerationAbortedError{Err: err}
			}
		}
		// the last pass gets no tools so the model has to answer
		if step < e.cfg.MaxSteps {
			req.Tools = e.definitions(t)
		}

		text, calls, err := e.generate(ctx, t, s, req)
		if err != nil {
			return nil, e.abort(ctx, t, err)
		}
		if len(calls) == 0 {
			break
		}
		if step >= e.cfg.MaxSteps {
			logger.Warn().Int("steps", step).Int("calls", len(calls)).Msg("step limit reached, ignoring tool calls")
			break
		}

		t.setState(ctx, core.StateToolRequested)
		t.stageRequest(text, calls)
		t.toolCalls += len(calls)
		for _, call := range calls {
			s.emit(core.Chunk{Type: core.ChunkToolCall, ToolCall: &call})
		}

		t.setState(ctx, core.StateToolExecuting)
		for _, call := range calls {
			res := e.invoke(ctx, t, call)
			t.stageResult(res)
			s.emit(core.Chunk{Type: core.ChunkToolResult, ToolResult: &res})
		}
	}

	t.setState(ctx, core.StateFinalizing)
	return e.finalize(ctx, t)
}

// definitions hides the working memory tool unless the turn enables it.
func (e *Engine) definitions(t *turn) []core.Tool {
	defs := e.tools.Definitions()
	if t.workingMemoryTool() {
		return defs
	}
	out := defs[:0]
	for _, d := range defs {
		if d.Function.Name != memory.UpdateWorkingMemoryTool {
			out = append(out, d)
		}
	}
	return out
}

// generate runs one model pass, streaming text to s. Tool calls are returned
// unannounced; execute emits them once it decides to run them.
func (e *Engine) generate(ctx context.Context, t *turn, s *Stream, req core.ChatRequest) (string, []core.ToolCall, error) {
	stream, err := e.ai.ChatStream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var text strings.Builder
	var calls []core.ToolCall
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}

		if delta.Content != "" {
			text.WriteString(delta.Content)
			t.text.WriteString(delta.Content)
			t.produced = true
			s.emit(core.Chunk{Type: core.ChunkText, Text: delta.Content})
		}
		for _, call := range delta.ToolCalls {
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			if call.Type == "" {
				call.Type = "function"
			}
			calls = append(calls, call)
			t.produced = true
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	t.steps++
	t.lastText = text.String()
	return t.lastText, calls, nil
}

// invoke never fails: dispatcher errors become error tool results.
func (e *Engine) invoke(ctx context.Context, t *turn, call core.ToolCall) core.ToolResult {
	logger := log.FromCtx(ctx)
	logger.Info().Str("tool", call.Function.Name).Str("call_id", call.ID).Msg("executing tool")

	res := core.ToolResult{ToolCallID: call.ID, Name: call.Function.Name}
	out, err := e.tools.Invoke(withTurn(ctx, t), call.Function.Name, call.Function.Arguments)
	if err != nil {
		logger.Warn().Err(err).Str("tool", call.Function.Name).Msg("tool call failed")
		res.Error = err.Error()
		res.ErrorKind = core.ToolErrorKind(err)
		return res
	}
	res.Output = truncate(out, e.cfg.MaxToolOutput)
	return res
}

func (e *Engine) finalize(ctx context.Context, t *turn) (*core.TurnResult, error) {
	// a model that only kept calling tools leaves nothing to answer with
	var assistant *core.Message
	if t.text.Len() > 0 {
		msg := core.NewTextMessage(core.RoleAssistant, t.text.String())
		assistant = &msg
	}

	var structured json.RawMessage
	if t.schema != nil {
		var err error
		structured, err = parseStructured(t.schema, t.lastText)
		if err != nil {
			return nil, &core.GenerationAbortedError{Err: &core.SchemaValidationError{
				Tool:  outputName(t.req.Options.OutputName),
				Stage: core.StageOutput,
				Err:   err,
			}}
		}
		assistant = &core.Message{Role: core.RoleAssistant, Parts: []core.Part{core.StructuredPart(structured)}}
	}

	saved, err := e.commit(ctx, t, assistant)
	if err != nil {
		return nil, err
	}

	t.setState(ctx, core.StateDone)
	res := t.result(saved)
	res.Structured = structured
	return res, nil
}

// abort wraps a generation failure. With PersistOnAbort, a cancelled turn
// that already produced output is committed as far as it got.
func (e *Engine) abort(ctx context.Context, t *turn, err error) error {
	aborted := &core.GenerationAbortedError{Err: err}
	if !e.cfg.PersistOnAbort || ctx.Err() == nil || !t.produced {
		return aborted
	}

	var partial *core.Message
	if t.text.Len() > 0 {
		msg := core.NewTextMessage(core.RoleAssistant, t.text.String())
		partial = &msg
	}
	if _, cerr := e.commit(context.WithoutCancel(ctx), t, partial); cerr != nil {
		log.FromCtx(ctx).Error().Err(cerr).Str("thread", t.req.ThreadID).Msg("failed to persist aborted turn")
	}
	return aborted
}

func (e *Engine) commit(ctx context.Context, t *turn, assistant *core.Message) ([]core.Message, error) {
	b := t.batch(assistant)
	if t.opts.GenerateTitle {
		b.Title = storage.Title(t.inputs)
	}

	saved, err := e.store.Commit(ctx, b)
	if err != nil {
		return nil, core.NewStorageError("commit turn", err)
	}

	if e.indexer != nil {
		e.indexer.Notify()
	}
	log.FromCtx(ctx).Debug().
		Str("thread", t.req.ThreadID).
		Int("messages", len(saved)).
		Int("steps", t.steps).
		Msg("turn committed")
	return saved, nil
}

func outputName(name string) string {
	if name == "" {
		return "response"
	}
	return name
}

// parseStructured decodes the model answer and validates it. A markdown
// code fence around the JSON is tolerated.
func parseStructured(schema *jsonschema.Resolved, text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
