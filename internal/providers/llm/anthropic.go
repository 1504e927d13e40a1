package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/sandevgo/tuskmem/internal/core"
)

const anthropicMaxTokens = 4096

var _ core.AIProvider = (*Anthropic)(nil)

// Anthropic talks to the native Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(baseURL, apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(newHTTPClient(nil)),
		),
		model: model,
	}
}

func (a *Anthropic) ChatStream(ctx context.Context, req core.ChatRequest) (core.ChatStream, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start chat stream: %w", err)
	}
	return &anthropicStream{stream: stream, calls: make(map[int64]*core.ToolCall)}, nil
}

func (a *Anthropic) buildParams(req core.ChatRequest) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}

	// no native json mode, so the schema travels as an instruction
	system := req.System
	if len(req.ResponseSchema) > 0 {
		system = append(slices.Clone(system),
			"Answer with a single JSON document matching this JSON schema and nothing else:\n"+string(req.ResponseSchema))
	}
	for _, s := range system {
		params.System = append(params.System, anthropic.TextBlockParam{Text: s})
	}

	for _, t := range req.Tools {
		schema, err := inputSchema(t.Function.Parameters)
		if err != nil {
			return params, fmt.Errorf("invalid schema for tool %s: %w", t.Function.Name, err)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Function.Name,
			Description: anthropic.String(t.Function.Description),
			InputSchema: schema,
		}})
	}
	return params, nil
}

func (a *Anthropic) Models(ctx context.Context) ([]string, error) {
	pager := a.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []string
	for pager.Next() {
		models = append(models, pager.Current().ID)
	}
	if err := pager.Err(); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	sort.Strings(models)
	return models, nil
}

func (a *Anthropic) Model() string {
	return a.model
}

func inputSchema(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	var s struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			return anthropic.ToolInputSchemaParam{}, err
		}
	}
	return anthropic.ToolInputSchemaParam{Properties: s.Properties, Required: s.Required}, nil
}

// toAnthropicMessages folds tool results into user turns. Consecutive
// messages of the same role are merged, as the API expects alternation.
func toAnthropicMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	add := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case core.RoleTool:
			r := m.ToolResult()
			add(anthropic.MessageParamRoleUser,
				anthropic.NewToolResultBlock(m.ToolCallID, toolContent(m), r != nil && r.IsError()))

		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := content(m); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls() {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, toolInput(tc.Function.Arguments), tc.Function.Name))
			}
			add(anthropic.MessageParamRoleAssistant, blocks...)

		default:
			if text := content(m); text != "" {
				add(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(text))
			}
		}
	}
	return out
}

func toolInput(args string) json.RawMessage {
	if !json.Valid([]byte(args)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}

// anthropicStream releases text deltas as they come and each tool call once
// its content block closes.
type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	calls  map[int64]*core.ToolCall
	done   bool
}

func (s *anthropicStream) Recv() (core.ChatDelta, error) {
	for {
		if s.done {
			return core.ChatDelta{}, io.EOF
		}
		if !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				return core.ChatDelta{}, fmt.Errorf("stream error: %w", err)
			}
			return core.ChatDelta{}, io.EOF
		}

		switch ev := s.stream.Current().AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				s.calls[ev.Index] = &core.ToolCall{
					ID:       ev.ContentBlock.ID,
					Type:     "function",
					Function: core.FunctionCall{Name: ev.ContentBlock.Name},
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					return core.ChatDelta{Content: d.Text}, nil
				}
			case anthropic.InputJSONDelta:
				if call, ok := s.calls[ev.Index]; ok {
					call.Function.Arguments += d.PartialJSON
				}
			}

		case anthropic.ContentBlockStopEvent:
			call, ok := s.calls[ev.Index]
			if !ok {
				continue
			}
			delete(s.calls, ev.Index)
			if call.Function.Arguments == "" {
				call.Function.Arguments = "{}"
			}
			return core.ChatDelta{ToolCalls: []core.ToolCall{*call}}, nil
		}
	}
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}
