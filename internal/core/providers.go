package core

import (
	"context"
	"encoding/json"
)

type ChatRequest struct {
	System   []string
	Messages []Message
	Tools    []Tool
	// ResponseSchema asks the model for JSON matching this schema instead of free text.
	ResponseSchema json.RawMessage
	ResponseName   string
}

// ChatDelta is one incremental unit of model output. ToolCalls only carries
// complete calls; providers assemble streamed fragments themselves.
type ChatDelta struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatStream yields deltas until Recv returns io.EOF.
type ChatStream interface {
	Recv() (ChatDelta, error)
	Close() error
}

type AIProvider interface {
	ChatStream(ctx context.Context, req ChatRequest) (ChatStream, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type TokenCounter interface {
	Count(text string) int
}
