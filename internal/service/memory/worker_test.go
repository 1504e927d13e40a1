package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedderWorker_Drain(t *testing.T) {
	ctx := context.Background()
	store, index, _ := newIndexed(t)
	worker := NewEmbedderWorker(store, index, time.Hour, 2)

	persisted, err := store.Commit(ctx, core.Batch{
		ThreadID:   "t1",
		ResourceID: "res",
		Messages: []core.Message{
			core.NewTextMessage(core.RoleUser, "weather in Seattle"),
			{Role: core.RoleAssistant, Parts: []core.Part{core.ToolCallPart(core.ToolCall{ID: "c1"})}},
			core.NewTextMessage(core.RoleUser, "thanks"),
		},
	})
	require.NoError(t, err)

	require.NoError(t, worker.Drain(ctx))

	left, err := store.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)

	hits, err := index.Search(ctx, core.Scope{Kind: core.ScopeThread, ThreadID: "t1"}, "Seattle weather", 5)
	require.NoError(t, err)
	// the tool-call-only message has no text and no vector
	require.Len(t, hits, 2)
	assert.Equal(t, persisted[0].ID, hits[0].MessageID)
}

func TestEmbedderWorker_FailureKeepsBacklog(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newIndexed(t)
	embedder := &hashEmbedder{err: errEmbedDown}
	worker := NewEmbedderWorker(store, NewIndex(store, embedder, noRetry()), time.Hour, 10)

	commitTexts(t, store, "t1", "hello", "world")
	// an outage never counts against the messages
	for range EmbedderMaxAttempts + 1 {
		assert.ErrorIs(t, worker.Drain(ctx), errEmbedDown)
	}

	left, err := store.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestEmbedderWorker_RejectedMessageDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newIndexed(t)
	index := NewIndex(store, &hashEmbedder{reject: "poison"}, noRetry())
	worker := NewEmbedderWorker(store, index, time.Hour, 10)

	msgs := commitTexts(t, store, "t1", "poison pill", "hello", "world")
	require.NoError(t, worker.Drain(ctx))

	left, err := store.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, msgs[0].ID, left[0].ID)

	hits, err := index.Search(ctx, core.Scope{Kind: core.ScopeThread, ThreadID: "t1"}, "hello", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, msgs[1].ID, hits[0].MessageID)

	// alone it looks like an outage, so it is kept and not counted
	assert.ErrorIs(t, worker.Drain(ctx), errRejected)

	for i := range EmbedderMaxAttempts - 1 {
		commitTexts(t, store, "t1", fmt.Sprintf("later %d", i))
		require.NoError(t, worker.Drain(ctx))
	}

	left, err = store.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestEmbedderWorker_Notify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store, index, _ := newIndexed(t)
	worker := NewEmbedderWorker(store, index, time.Hour, 10)

	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	commitTexts(t, store, "t1", "hello", "world")
	worker.Notify()

	require.Eventually(t, func() bool {
		left, err := store.ListUnindexed(ctx, 10)
		return err == nil && len(left) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	store, index, _ := newIndexed(t)
	msgs := commitTexts(t, store, "t1", "alpha beta", "gamma")
	scope := core.Scope{Kind: core.ScopeThread, ThreadID: "t1", ResourceID: "res"}

	require.NoError(t, index.Index(ctx, scope, "alpha beta", msgs[0].ID))
	require.NoError(t, index.Index(ctx, scope, "alpha beta", msgs[0].ID))

	hits, err := index.Search(ctx, scope, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, msgs[0].ID, hits[0].MessageID)

	empty, err := index.Search(ctx, core.Scope{Kind: core.ScopeThread, ThreadID: "other"}, "alpha", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	err = index.Index(ctx, scope, "ghost", "missing-id")
	var se *core.StorageError
	assert.ErrorAs(t, err, &se)
}
