package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUI(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		msg      core.Message
		expected core.UIMessage
	}{
		{
			name: "text parts concatenated",
			msg: core.Message{
				ID:        "m1",
				Role:      core.RoleAssistant,
				Parts:     []core.Part{core.TextPart("Hello "), core.TextPart("**world**")},
				CreatedAt: created,
			},
			expected: core.UIMessage{
				ID:   "m1",
				Role: core.RoleAssistant,
				Text: "Hello **world**",
				HTML: "<p>Hello <strong>world</strong></p>\n",
				Parts: []core.UIPart{
					{Type: "text", Text: "Hello "},
					{Type: "text", Text: "**world**"},
				},
				CreatedAt: created,
			},
		},
		{
			name: "tool call",
			msg: core.Message{
				ID:   "m2",
				Role: core.RoleAssistant,
				Parts: []core.Part{core.ToolCallPart(core.ToolCall{
					ID:       "call_1",
					Function: core.FunctionCall{Name: "weather", Arguments: `{"city":"Seattle"}`},
				})},
			},
			expected: core.UIMessage{
				ID:   "m2",
				Role: core.RoleAssistant,
				Parts: []core.UIPart{
					{Type: "tool-call", ToolCallID: "call_1", ToolName: "weather", Args: `{"city":"Seattle"}`, State: StateCall},
				},
			},
		},
		{
			name: "tool error result",
			msg: core.Message{
				ID:         "m3",
				Role:       core.RoleTool,
				ToolCallID: "call_1",
				Parts: []core.Part{core.ToolResultPart(core.ToolResult{
					ToolCallID: "call_1", Name: "weather", Error: "boom", ErrorKind: core.ErrorKindExecution,
				})},
			},
			expected: core.UIMessage{
				ID:   "m3",
				Role: core.RoleTool,
				Parts: []core.UIPart{
					{Type: "tool-result", ToolCallID: "call_1", ToolName: "weather", State: StateResult, Result: "boom", IsError: true},
				},
			},
		},
		{
			name: "structured",
			msg: core.Message{
				ID:    "m4",
				Role:  core.RoleAssistant,
				Parts: []core.Part{core.StructuredPart(json.RawMessage(`{"temp":70}`))},
			},
			expected: core.UIMessage{
				ID:    "m4",
				Role:  core.RoleAssistant,
				Parts: []core.UIPart{{Type: "structured", Data: `{"temp":70}`}},
			},
		},
		{
			name: "unknown and malformed parts",
			msg: core.Message{
				ID:   "m5",
				Role: core.RoleAssistant,
				Parts: []core.Part{
					{Type: "image"},
					{Type: core.PartToolCall},
				},
			},
			expected: core.UIMessage{
				ID:   "m5",
				Role: core.RoleAssistant,
				Parts: []core.UIPart{
					{Type: PartUnknown, Text: UnsupportedText},
					{Type: PartUnknown, Text: UnsupportedText},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ToUI(tt.msg))
		})
	}
}

func TestToUIMessages_AttachesResults(t *testing.T) {
	msgs := []core.Message{
		core.NewTextMessage(core.RoleUser, "weather in Seattle?"),
		{
			Role: core.RoleAssistant,
			Parts: []core.Part{core.ToolCallPart(core.ToolCall{
				ID: "call_1", Function: core.FunctionCall{Name: "weather"},
			})},
		},
		{
			Role:       core.RoleTool,
			ToolCallID: "call_1",
			Parts: []core.Part{core.ToolResultPart(core.ToolResult{
				ToolCallID: "call_1", Name: "weather", Output: json.RawMessage(`"70 degrees"`),
			})},
		},
		core.NewTextMessage(core.RoleAssistant, "It is 70 degrees in Seattle."),
	}

	ui := ToUIMessages(msgs)
	require.Len(t, ui, 4)

	call := ui[1].Parts[0]
	assert.Equal(t, StateResult, call.State)
	assert.Equal(t, `"70 degrees"`, call.Result)
	assert.False(t, call.IsError)
	assert.Equal(t, "It is 70 degrees in Seattle.", ui[3].Text)

	assert.Empty(t, ToUIMessages(nil))
}
