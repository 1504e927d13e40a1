package core

import "encoding/json"

type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
	PartStructured PartType = "structured"
)

// Part is one typed segment of message content. Exactly one payload field
// is set, selected by Type.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCall       `json:"tool_call,omitempty"`
	ToolResult *ToolResult     `json:"tool_result,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
}

func (r ToolResult) IsError() bool {
	return r.Error != ""
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ToolCallPart(call ToolCall) Part {
	return Part{Type: PartToolCall, ToolCall: &call}
}

func ToolResultPart(res ToolResult) Part {
	return Part{Type: PartToolResult, ToolResult: &res}
}

func StructuredPart(data json.RawMessage) Part {
	return Part{Type: PartStructured, Data: data}
}
