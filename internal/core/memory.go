package core

import (
	"maps"
	"time"
)

type WorkingMemoryMode string

const (
	WorkingMemoryEnabled  WorkingMemoryMode = "enabled"
	WorkingMemoryToolCall WorkingMemoryMode = "tool-call"
)

// MemoryOptions controls context assembly for one turn.
type MemoryOptions struct {
	LastMessages      int
	SemanticRecall    bool
	TopK              int
	MessageRange      int
	RecallScope       RecallScope
	WorkingMemory     bool
	WorkingMemoryMode WorkingMemoryMode
	GenerateTitle     bool
	MaxContextTokens  int
}

type WorkingMemory struct {
	ThreadID   string         `json:"thread_id"`
	ResourceID string         `json:"resource_id"`
	Data       map[string]any `json:"data"`
	Version    int64          `json:"version"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// WorkingMemoryPatch is merged into the stored state. A nil value deletes
// its key. Replace drops all existing keys first.
type WorkingMemoryPatch struct {
	Set     map[string]any `json:"set"`
	Replace bool           `json:"replace,omitempty"`
}

// Apply returns the merged copy of data.
func (p WorkingMemoryPatch) Apply(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+len(p.Set))
	if !p.Replace {
		maps.Copy(out, data)
	}
	for k, v := range p.Set {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Merge folds next into p, next winning on conflicts.
func (p *WorkingMemoryPatch) Merge(next WorkingMemoryPatch) {
	if next.Replace {
		p.Replace = true
		p.Set = make(map[string]any, len(next.Set))
	}
	if p.Set == nil {
		p.Set = make(map[string]any, len(next.Set))
	}
	maps.Copy(p.Set, next.Set)
}

// ContextWindow is what the model sees for one turn.
type ContextWindow struct {
	System        []string
	Messages      []Message
	WorkingMemory *WorkingMemory
	Recalled      int
}

type QueryResult struct {
	Messages   []Message   `json:"messages"`
	UIMessages []UIMessage `json:"ui_messages"`
}

type UIMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	HTML      string    `json:"html,omitempty"`
	Parts     []UIPart  `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

type UIPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Args       string `json:"args,omitempty"`
	State      string `json:"state,omitempty"`
	Result     string `json:"result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	Data       string `json:"data,omitempty"`
}
