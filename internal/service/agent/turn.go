package agent

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// turn is the state of one Start call. It is owned by the producer goroutine.
type turn struct {
	req    TurnRequest
	opts   core.MemoryOptions
	schema *jsonschema.Resolved

	state  core.TurnState
	window *core.ContextWindow

	inputs []core.Message
	// visible is what the model sees inside the turn; staged is what gets
	// persisted. Request messages differ: the persisted one only carries the
	// tool-call parts.
	visible []core.Message
	staged  []core.Message

	text      strings.Builder
	lastText  string
	patch     *core.WorkingMemoryPatch
	produced  bool
	toolCalls int
	steps     int
}

func newTurn(req TurnRequest, opts core.MemoryOptions, schema *jsonschema.Resolved) *turn {
	inputs := make([]core.Message, len(req.Input))
	for i, text := range req.Input {
		inputs[i] = core.NewTextMessage(core.RoleUser, text)
	}
	return &turn{
		req:    req,
		opts:   opts,
		schema: schema,
		inputs: inputs,
	}
}

func (t *turn) setState(ctx context.Context, s core.TurnState) {
	log.FromCtx(ctx).Debug().
		Str("thread", t.req.ThreadID).
		Str("from", string(t.state)).
		Str("to", string(s)).
		Msg("turn state")
	t.state = s
}

func (t *turn) workingMemoryTool() bool {
	return t.opts.WorkingMemory && t.opts.WorkingMemoryMode == core.WorkingMemoryToolCall
}

// history is the model input for the next generation pass.
func (t *turn) history() []core.Message {
	out := make([]core.Message, 0, len(t.window.Messages)+len(t.inputs)+len(t.visible))
	out = append(out, t.window.Messages...)
	out = append(out, t.inputs...)
	out = append(out, t.visible...)
	return out
}

// stageRequest records an assistant pass that ended with tool calls.
func (t *turn) stageRequest(text string, calls []core.ToolCall) {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart(text))
	}
	persisted := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, core.ToolCallPart(c))
		persisted = append(persisted, core.ToolCallPart(c))
	}
	t.visible = append(t.visible, core.Message{Role: core.RoleAssistant, Parts: parts})
	t.staged = append(t.staged, core.Message{Role: core.RoleAssistant, Parts: persisted})
}

func (t *turn) stageResult(res core.ToolResult) {
	msg := core.Message{
		Role:       core.RoleTool,
		ToolCallID: res.ToolCallID,
		Parts:      []core.Part{core.ToolResultPart(res)},
	}
	t.visible = append(t.visible, msg)
	t.staged = append(t.staged, msg)
}

func (t *turn) batch(assistant *core.Message) core.Batch {
	msgs := make([]core.Message, 0, len(t.inputs)+len(t.staged)+1)
	msgs = append(msgs, t.inputs...)
	msgs = append(msgs, t.staged...)
	if assistant != nil {
		msgs = append(msgs, *assistant)
	}

	b := core.Batch{
		ThreadID:   t.req.ThreadID,
		ResourceID: t.req.ResourceID,
		Messages:   msgs,
	}
	if t.patch != nil && (t.patch.Replace || len(t.patch.Set) > 0) {
		b.WorkingMemory = t.patch
	}
	return b
}

func (t *turn) result(saved []core.Message) *core.TurnResult {
	res := &core.TurnResult{
		ThreadID:  t.req.ThreadID,
		State:     t.state,
		Messages:  saved,
		Text:      t.text.String(),
		ToolCalls: t.toolCalls,
		Steps:     t.steps,
	}
	if n := len(saved); n > 0 && saved[n-1].Role == core.RoleAssistant {
		res.Assistant = &saved[n-1]
	}
	return res
}
