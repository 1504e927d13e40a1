package agent

import (
	"sync"

	"github.com/sandevgo/tuskmem/internal/core"
)

// Stream delivers the chunks of one turn. It is consumed once: either range
// over Chunks, or call Collect.
type Stream struct {
	chunks   chan core.Chunk
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	result *core.TurnResult
	err    error
}

func newStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		chunks: make(chan core.Chunk, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Chunks is closed after the terminal done or error chunk.
func (s *Stream) Chunks() <-chan core.Chunk {
	return s.chunks
}

// Close stops delivery. The turn keeps running and still finalizes; Wait
// reports its outcome.
func (s *Stream) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until the turn reaches a terminal state. The caller must keep
// reading Chunks or call Close first, otherwise a full buffer blocks the turn.
func (s *Stream) Wait() (*core.TurnResult, error) {
	<-s.done
	return s.result, s.err
}

// Collect drains the stream and returns the outcome of the turn.
func (s *Stream) Collect() (*core.TurnResult, error) {
	for range s.chunks {
	}
	return s.Wait()
}

// emit reports false once the consumer has closed the stream.
func (s *Stream) emit(c core.Chunk) bool {
	select {
	case <-s.stop:
		return false
	default:
	}

	select {
	case s.chunks <- c:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Stream) finish(res *core.TurnResult, err error) {
	s.result = res
	s.err = err
	close(s.chunks)
	close(s.done)
}
