package core

import "encoding/json"

type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkToolCall   ChunkType = "tool-call"
	ChunkToolResult ChunkType = "tool-result"
	ChunkDone       ChunkType = "done"
	ChunkError      ChunkType = "error"
)

type Chunk struct {
	Type       ChunkType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Result     *TurnResult
	Err        error
}

type TurnState string

const (
	StateAssembling    TurnState = "assembling"
	StateGenerating    TurnState = "generating"
	StateToolRequested TurnState = "tool_requested"
	StateToolExecuting TurnState = "tool_executing"
	StateFinalizing    TurnState = "finalizing"
	StateDone          TurnState = "done"
	StateErrored       TurnState = "errored"
)

func (s TurnState) Terminal() bool {
	return s == StateDone || s == StateErrored
}

type TurnResult struct {
	ThreadID string
	State    TurnState
	// Messages are the messages persisted by this turn, in order.
	Messages  []Message
	Assistant *Message
	Text      string
	// Structured holds the validated structured output, if one was requested.
	Structured json.RawMessage
	ToolCalls  int
	Steps      int
}
