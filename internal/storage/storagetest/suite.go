// Package storagetest is the behaviour suite every core.Store backend runs.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) core.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("CommitAndQuery", func(t *testing.T) { testCommitAndQuery(t, newStore(t)) })
	t.Run("QueryEmptyThread", func(t *testing.T) { testQueryEmptyThread(t, newStore(t)) })
	t.Run("AllUserMessagesPersisted", func(t *testing.T) { testAllUserMessagesPersisted(t, newStore(t)) })
	t.Run("PartsRoundTrip", func(t *testing.T) { testPartsRoundTrip(t, newStore(t)) })
	t.Run("RejectsInvalidBatch", func(t *testing.T) { testRejectsInvalidBatch(t, newStore(t)) })
	t.Run("Threads", func(t *testing.T) { testThreads(t, newStore(t)) })
	t.Run("WorkingMemory", func(t *testing.T) { testWorkingMemory(t, newStore(t)) })
	t.Run("Unindexed", func(t *testing.T) { testUnindexed(t, newStore(t)) })
	t.Run("Embeddings", func(t *testing.T) { testEmbeddings(t, newStore(t)) })
	t.Run("ConcurrentThreads", func(t *testing.T) { testConcurrentThreads(t, newStore(t)) })
	t.Run("ConcurrentSameThread", func(t *testing.T) { testConcurrentSameThread(t, newStore(t)) })
}

func userBatch(thread, resource string, texts ...string) core.Batch {
	b := core.Batch{ThreadID: thread, ResourceID: resource}
	for _, text := range texts {
		b.Messages = append(b.Messages, core.NewTextMessage(core.RoleUser, text))
	}
	return b
}

func texts(msgs []core.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text())
	}
	return out
}

func testCommitAndQuery(t *testing.T, s core.Store) {
	ctx := context.Background()

	first, err := s.Commit(ctx, userBatch("t1", "r1", "one", "two"))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Seq)
	assert.Equal(t, int64(2), first[1].Seq)
	assert.NotEmpty(t, first[0].ID)
	assert.Equal(t, "t1", first[0].ThreadID)
	assert.Equal(t, "r1", first[0].ResourceID)
	assert.True(t, first[1].CreatedAt.After(first[0].CreatedAt))

	_, err = s.Commit(ctx, userBatch("t1", "r1", "three", "four", "five"))
	require.NoError(t, err)

	all, err := s.Query(ctx, "t1", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, texts(all))
	for i, m := range all {
		assert.Equal(t, int64(i+1), m.Seq)
	}

	last, err := s.Query(ctx, "t1", core.QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"four", "five"}, texts(last))

	before, err := s.Query(ctx, "t1", core.QueryOptions{Limit: 2, BeforeSeq: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, texts(before))

	between, err := s.Query(ctx, "t1", core.QueryOptions{AfterSeq: 1, BeforeSeq: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, texts(between))

	got, err := s.GetMessages(ctx, []string{first[1].ID, "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].Text())
}

func testQueryEmptyThread(t *testing.T, s core.Store) {
	msgs, err := s.Query(context.Background(), "nobody", core.QueryOptions{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	wm, err := s.GetWorkingMemory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, wm)

	_, err = s.GetThread(context.Background(), "nobody")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)
}

func testAllUserMessagesPersisted(t *testing.T, s core.Store) {
	ctx := context.Background()

	var inputs []string
	for i := range 7 {
		inputs = append(inputs, fmt.Sprintf("message %d", i))
	}
	_, err := s.Commit(ctx, userBatch("t-many", "r1", inputs...))
	require.NoError(t, err)

	msgs, err := s.Query(ctx, "t-many", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, inputs, texts(msgs))
}

func testPartsRoundTrip(t *testing.T, s core.Store) {
	ctx := context.Background()
	call := core.ToolCall{ID: "call_1", Type: "function", Function: core.FunctionCall{Name: "weather", Arguments: `{"city":"Seattle"}`}}

	_, err := s.Commit(ctx, core.Batch{
		ThreadID:   "t-parts",
		ResourceID: "r1",
		Messages: []core.Message{
			{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart("checking"), core.ToolCallPart(call)}},
			{Role: core.RoleTool, ToolCallID: "call_1", Parts: []core.Part{core.ToolResultPart(core.ToolResult{
				ToolCallID: "call_1",
				Name:       "weather",
				Output:     []byte(`"70 degrees"`),
			})}},
			{Role: core.RoleAssistant, Parts: []core.Part{core.StructuredPart([]byte(`{"temp":70}`))}},
		},
	})
	require.NoError(t, err)

	msgs, err := s.Query(ctx, "t-parts", core.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	require.Len(t, msgs[0].ToolCalls(), 1)
	assert.Equal(t, call, msgs[0].ToolCalls()[0])
	assert.Equal(t, "checking", msgs[0].Text())

	assert.Equal(t, "call_1", msgs[1].ToolCallID)
	require.NotNil(t, msgs[1].ToolResult())
	assert.JSONEq(t, `"70 degrees"`, string(msgs[1].ToolResult().Output))

	require.Len(t, msgs[2].Parts, 1)
	assert.Equal(t, core.PartStructured, msgs[2].Parts[0].Type)
	assert.JSONEq(t, `{"temp":70}`, string(msgs[2].Parts[0].Data))
}

func testRejectsInvalidBatch(t *testing.T, s core.Store) {
	ctx := context.Background()

	_, err := s.Commit(ctx, core.Batch{ThreadID: "t-bad", ResourceID: "r1", Messages: []core.Message{
		core.NewTextMessage(core.RoleUser, "fine"),
		{Role: core.RoleTool},
	}})
	var se *core.StorageError
	require.True(t, errors.As(err, &se), "want StorageError, got %v", err)

	msgs, err := s.Query(ctx, "t-bad", core.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs, "a failed batch must not be partially written")

	_, err = s.Commit(ctx, userBatch("t-owned", "r1", "hi"))
	require.NoError(t, err)
	_, err = s.Commit(ctx, userBatch("t-owned", "r2", "hijack"))
	assert.True(t, errors.As(err, &se))
}

func testThreads(t *testing.T, s core.Store) {
	ctx := context.Background()

	b := userBatch("t-a", "r-threads", "first question")
	b.Title = "first question"
	_, err := s.Commit(ctx, b)
	require.NoError(t, err)

	b = userBatch("t-a", "r-threads", "second question")
	b.Title = "ignored"
	_, err = s.Commit(ctx, b)
	require.NoError(t, err)

	_, err = s.Commit(ctx, userBatch("t-b", "r-threads", "other"))
	require.NoError(t, err)
	_, err = s.Commit(ctx, userBatch("t-c", "r-else", "elsewhere"))
	require.NoError(t, err)

	thread, err := s.GetThread(ctx, "t-a")
	require.NoError(t, err)
	assert.Equal(t, "first question", thread.Title)
	assert.Equal(t, "r-threads", thread.ResourceID)
	assert.False(t, thread.UpdatedAt.Before(thread.CreatedAt))

	threads, err := s.ListThreads(ctx, "r-threads")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	ids := []string{threads[0].ID, threads[1].ID}
	assert.ElementsMatch(t, []string{"t-a", "t-b"}, ids)
}

func testWorkingMemory(t *testing.T, s core.Store) {
	ctx := context.Background()

	b := userBatch("t-wm", "r1", "my name is Ann")
	b.WorkingMemory = &core.WorkingMemoryPatch{Set: map[string]any{"name": "Ann", "city": "Paris"}}
	_, err := s.Commit(ctx, b)
	require.NoError(t, err)

	wm, err := s.GetWorkingMemory(ctx, "t-wm")
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, int64(1), wm.Version)
	assert.Equal(t, map[string]any{"name": "Ann", "city": "Paris"}, wm.Data)

	_, err = s.Commit(ctx, core.Batch{
		ThreadID:      "t-wm",
		ResourceID:    "r1",
		WorkingMemory: &core.WorkingMemoryPatch{Set: map[string]any{"city": "Seattle", "name": nil}},
	})
	require.NoError(t, err)

	wm, err = s.GetWorkingMemory(ctx, "t-wm")
	require.NoError(t, err)
	assert.Equal(t, int64(2), wm.Version)
	assert.Equal(t, map[string]any{"city": "Seattle"}, wm.Data)

	// a rejected batch leaves working memory untouched
	bad := core.Batch{
		ThreadID:      "t-wm",
		ResourceID:    "r1",
		Messages:      []core.Message{{Role: core.RoleTool}},
		WorkingMemory: &core.WorkingMemoryPatch{Set: map[string]any{"city": "Oslo"}},
	}
	_, err = s.Commit(ctx, bad)
	require.Error(t, err)

	wm, err = s.GetWorkingMemory(ctx, "t-wm")
	require.NoError(t, err)
	assert.Equal(t, "Seattle", wm.Data["city"])
	assert.Equal(t, int64(2), wm.Version)
}

func testUnindexed(t *testing.T, s core.Store) {
	ctx := context.Background()

	persisted, err := s.Commit(ctx, userBatch("t-idx", "r1", "a", "b", "c"))
	require.NoError(t, err)

	pending, err := s.ListUnindexed(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, persisted[0].ID, pending[0].ID)
	assert.Equal(t, persisted[1].ID, pending[1].ID)

	require.NoError(t, s.MarkIndexed(ctx, []string{pending[0].ID, pending[1].ID}))

	pending, err = s.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, persisted[2].ID, pending[0].ID)

	require.NoError(t, s.MarkIndexed(ctx, []string{persisted[2].ID}))
	pending, err = s.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func testEmbeddings(t *testing.T, s core.Store) {
	ctx := context.Background()
	threadScope := core.Scope{Kind: core.ScopeThread, ThreadID: "t-vec", ResourceID: "r-vec"}

	hits, err := s.SearchEmbeddings(ctx, core.SearchQuery{Scope: threadScope, Vector: []float32{1, 0}, TopK: 3})
	require.NoError(t, err)
	assert.Empty(t, hits)

	msgs, err := s.Commit(ctx, userBatch("t-vec", "r-vec", "old", "orthogonal", "new"))
	require.NoError(t, err)
	other, err := s.Commit(ctx, userBatch("t-vec-2", "r-vec", "sibling"))
	require.NoError(t, err)

	upsert := func(m core.Message, v []float32) {
		require.NoError(t, s.UpsertEmbedding(ctx, core.EmbeddingRecord{MessageID: m.ID, Vector: v, Model: "test"}))
	}
	upsert(msgs[0], []float32{0, 1})
	upsert(msgs[0], []float32{1, 0}) // replaces, never duplicates
	upsert(msgs[1], []float32{0, 1})
	upsert(msgs[2], []float32{1, 0})
	upsert(other[0], []float32{1, 0})

	hits, err = s.SearchEmbeddings(ctx, core.SearchQuery{Scope: threadScope, Vector: []float32{1, 0}, TopK: 10})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, msgs[2].ID, hits[0].MessageID, "ties go to the more recent message")
	assert.Equal(t, msgs[0].ID, hits[1].MessageID)
	assert.Equal(t, msgs[1].ID, hits[2].MessageID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, msgs[2].Seq, hits[0].Seq)

	hits, err = s.SearchEmbeddings(ctx, core.SearchQuery{Scope: threadScope, Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	resourceScope := core.Scope{Kind: core.ScopeResource, ThreadID: "t-vec", ResourceID: "r-vec"}
	hits, err = s.SearchEmbeddings(ctx, core.SearchQuery{Scope: resourceScope, Vector: []float32{1, 0}, TopK: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	err = s.UpsertEmbedding(ctx, core.EmbeddingRecord{MessageID: "no-such-message", Vector: []float32{1}})
	assert.Error(t, err, "the index must never outrun the message store")
}

func testConcurrentThreads(t *testing.T, s core.Store) {
	ctx := context.Background()
	const threads, perThread = 4, 10

	var wg sync.WaitGroup
	errs := make(chan error, threads*perThread)
	for i := range threads {
		wg.Add(1)
		go func(thread string) {
			defer wg.Done()
			for j := range perThread {
				if _, err := s.Commit(ctx, userBatch(thread, "r-conc", fmt.Sprintf("%s-%d", thread, j))); err != nil {
					errs <- err
				}
			}
		}(fmt.Sprintf("conc-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := range threads {
		thread := fmt.Sprintf("conc-%d", i)
		msgs, err := s.Query(ctx, thread, core.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, msgs, perThread)
		for j, m := range msgs {
			assert.Equal(t, int64(j+1), m.Seq)
			assert.Equal(t, fmt.Sprintf("%s-%d", thread, j), m.Text())
		}
	}
}

func testConcurrentSameThread(t *testing.T, s core.Store) {
	ctx := context.Background()
	const writers, perWriter = 4, 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for i := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := range perWriter {
				if _, err := s.Commit(ctx, userBatch("shared", "r-shared", fmt.Sprintf("w%d-%d", w, j), "pair")); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.Query(ctx, "shared", core.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter*2)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
		}
		// batches are never interleaved
		if i%2 == 1 {
			assert.Equal(t, "pair", m.Text())
		}
	}
}
