package storage

import (
	"context"

	"github.com/sandevgo/tuskmem/internal/core"
)

// Append persists a single message through Commit.
func Append(ctx context.Context, s core.MessageStore, threadID, resourceID string, msg core.Message) (core.Message, error) {
	persisted, err := s.Commit(ctx, core.Batch{
		ThreadID:   threadID,
		ResourceID: resourceID,
		Messages:   []core.Message{msg},
	})
	if err != nil {
		return core.Message{}, err
	}
	return persisted[0], nil
}
