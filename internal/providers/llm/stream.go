package llm

import (
	"errors"
	"fmt"
	"io"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sashabaranov/go-openai"
)

// chatStream turns completion chunks into deltas. Tool call fragments are
// buffered and released as complete calls once the model stops.
type chatStream struct {
	stream *openai.ChatCompletionStream
	calls  map[int]*core.ToolCall
	order  []int
	last   int
	done   bool
}

func newChatStream(stream *openai.ChatCompletionStream) *chatStream {
	return &chatStream{
		stream: stream,
		calls:  make(map[int]*core.ToolCall),
		last:   -1,
	}
}

func (s *chatStream) Recv() (core.ChatDelta, error) {
	for {
		if s.done {
			return core.ChatDelta{}, io.EOF
		}

		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			if calls := s.flush(); len(calls) > 0 {
				return core.ChatDelta{ToolCalls: calls}, nil
			}
			return core.ChatDelta{}, io.EOF
		}
		if err != nil {
			return core.ChatDelta{}, err
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		for _, tc := range delta.ToolCalls {
			s.accumulate(tc)
		}
		if delta.Content != "" {
			return core.ChatDelta{Content: delta.Content}, nil
		}
	}
}

func (s *chatStream) accumulate(tc openai.ToolCall) {
	idx := s.last
	switch {
	case tc.Index != nil:
		idx = *tc.Index
	case tc.ID != "" || idx < 0:
		// providers without indexes send one complete call per entry
		idx = len(s.order)
	}

	call, ok := s.calls[idx]
	if !ok {
		call = &core.ToolCall{Type: "function"}
		s.calls[idx] = call
		s.order = append(s.order, idx)
	}
	s.last = idx

	if tc.ID != "" {
		call.ID = tc.ID
	}
	call.Function.Name += tc.Function.Name
	call.Function.Arguments += tc.Function.Arguments
}

func (s *chatStream) flush() []core.ToolCall {
	calls := make([]core.ToolCall, 0, len(s.order))
	for i, idx := range s.order {
		call := *s.calls[idx]
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		calls = append(calls, call)
	}
	return calls
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}
