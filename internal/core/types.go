package core

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	TuskName          = "TuskMem"
	TuskUserAgent     = "TuskMem-Agent/0.2"
	TuskRepositoryURL = "https://github.com/sandevgo/tuskmem"
	TuskVersion       = "0.2.0"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r can be persisted. System messages only live in
// assembled context windows.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Thread struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	ResourceID string    `json:"resource_id"`
	Role       Role      `json:"role"`
	Parts      []Part    `json:"parts"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}}
}

// Text concatenates all text parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Type == PartToolCall && p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

func (m Message) ToolResult() *ToolResult {
	for _, p := range m.Parts {
		if p.Type == PartToolResult && p.ToolResult != nil {
			return p.ToolResult
		}
	}
	return nil
}

// IndexText is the text the vector index embeds for this message.
func (m Message) IndexText() string {
	var chunks []string
	for _, p := range m.Parts {
		switch p.Type {
		case PartText:
			if p.Text != "" {
				chunks = append(chunks, p.Text)
			}
		case PartStructured:
			if len(p.Data) > 0 {
				chunks = append(chunks, string(p.Data))
			}
		case PartToolResult:
			if p.ToolResult != nil && len(p.ToolResult.Output) > 0 {
				chunks = append(chunks, string(p.ToolResult.Output))
			}
		}
	}
	return strings.Join(chunks, "\n")
}
