package memory

import (
	"context"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// sanitizeToolCalls drops tool results that do not answer a call of the
// preceding assistant message, and strips calls that never got a result.
// A user message closes the open calls.
func sanitizeToolCalls(ctx context.Context, msgs []core.Message) []core.Message {
	var (
		pending map[string]bool
		owner   int
		// answered call ids per assistant message index
		answered = make(map[int]map[string]bool)
		keep     = make([]bool, len(msgs))
		dropped  int
	)

	for i, m := range msgs {
		switch m.Role {
		case core.RoleAssistant:
			pending = make(map[string]bool)
			for _, tc := range m.ToolCalls() {
				pending[tc.ID] = true
			}
			owner = i
			answered[i] = make(map[string]bool)
			keep[i] = true
		case core.RoleTool:
			if pending[m.ToolCallID] {
				delete(pending, m.ToolCallID)
				answered[owner][m.ToolCallID] = true
				keep[i] = true
			} else {
				dropped++
			}
		default:
			pending = nil
			keep[i] = true
		}
	}

	var out []core.Message
	for i, m := range msgs {
		if !keep[i] {
			continue
		}
		if m.Role == core.RoleAssistant && len(m.ToolCalls()) > 0 {
			parts := make([]core.Part, 0, len(m.Parts))
			for _, p := range m.Parts {
				if p.Type == core.PartToolCall && p.ToolCall != nil && !answered[i][p.ToolCall.ID] {
					dropped++
					continue
				}
				parts = append(parts, p)
			}
			if len(parts) == 0 {
				continue
			}
			m.Parts = parts
		}
		out = append(out, m)
	}

	if dropped > 0 {
		log.FromCtx(ctx).Debug().Int("dropped", dropped).Msg("sanitized tool calls in context window")
	}
	return out
}
