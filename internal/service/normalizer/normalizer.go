// Package normalizer flattens stored messages into the form a UI renders.
// It never fails: content it does not understand becomes a placeholder.
package normalizer

import (
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/conv"
)

const (
	PartUnknown = "unknown"

	StateCall   = "call"
	StateResult = "result"

	UnsupportedText = "[unsupported content]"
)

func ToUI(msg core.Message) core.UIMessage {
	out := core.UIMessage{
		ID:        msg.ID,
		Role:      msg.Role,
		Parts:     make([]core.UIPart, 0, len(msg.Parts)),
		CreatedAt: msg.CreatedAt,
	}

	var text strings.Builder
	for _, p := range msg.Parts {
		part := toUIPart(p)
		if part.Type == string(core.PartText) {
			text.WriteString(part.Text)
		}
		out.Parts = append(out.Parts, part)
	}

	out.Text = text.String()
	out.HTML = conv.MarkdownToHTML(out.Text)
	return out
}

// ToUIMessages converts msgs and attaches each tool result to the tool-call
// part it answers.
func ToUIMessages(msgs []core.Message) []core.UIMessage {
	out := make([]core.UIMessage, 0, len(msgs))
	calls := make(map[string]*core.UIPart)

	for _, msg := range msgs {
		ui := ToUI(msg)
		out = append(out, ui)
		last := &out[len(out)-1]

		for i := range last.Parts {
			p := &last.Parts[i]
			switch p.Type {
			case string(core.PartToolCall):
				calls[p.ToolCallID] = p
			case string(core.PartToolResult):
				if call, ok := calls[p.ToolCallID]; ok {
					call.State = StateResult
					call.Result = p.Result
					call.IsError = p.IsError
				}
			}
		}
	}
	return out
}

func toUIPart(p core.Part) core.UIPart {
	switch p.Type {
	case core.PartText:
		return core.UIPart{Type: string(core.PartText), Text: p.Text}

	case core.PartToolCall:
		if p.ToolCall == nil {
			break
		}
		return core.UIPart{
			Type:       string(core.PartToolCall),
			ToolCallID: p.ToolCall.ID,
			ToolName:   p.ToolCall.Function.Name,
			Args:       p.ToolCall.Function.Arguments,
			State:      StateCall,
		}

	case core.PartToolResult:
		if p.ToolResult == nil {
			break
		}
		r := p.ToolResult
		result := string(r.Output)
		if r.IsError() {
			result = r.Error
		}
		return core.UIPart{
			Type:       string(core.PartToolResult),
			ToolCallID: r.ToolCallID,
			ToolName:   r.Name,
			State:      StateResult,
			Result:     result,
			IsError:    r.IsError(),
		}

	case core.PartStructured:
		return core.UIPart{Type: string(core.PartStructured), Data: string(p.Data)}
	}

	return core.UIPart{Type: PartUnknown, Text: UnsupportedText}
}
