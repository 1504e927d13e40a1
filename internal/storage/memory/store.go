// Package memory is an in-process Store. Threads are locked independently,
// so commits on different threads do not wait for each other.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/vec"
)

var _ core.Store = (*Store)(nil)

type threadLog struct {
	mu       sync.Mutex
	thread   core.Thread
	messages []core.Message
	wm       *core.WorkingMemory
}

type messageRef struct {
	threadID string
	pos      int
}

type Store struct {
	mu         sync.RWMutex
	threads    map[string]*threadLog
	refs       map[string]messageRef
	unindexed  []string
	embeddings map[string]core.EmbeddingRecord
}

func NewStore() *Store {
	return &Store{
		threads:    make(map[string]*threadLog),
		refs:       make(map[string]messageRef),
		embeddings: make(map[string]core.EmbeddingRecord),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) threadFor(b core.Batch, now time.Time) (*threadLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[b.ThreadID]
	if !ok {
		t = &threadLog{thread: core.Thread{
			ID:         b.ThreadID,
			ResourceID: b.ResourceID,
			Title:      b.Title,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}
		s.threads[b.ThreadID] = t
		return t, nil
	}
	if t.thread.ResourceID != b.ResourceID {
		return nil, storage.ErrResourceMismatch
	}
	return t, nil
}

func (s *Store) Commit(ctx context.Context, b core.Batch) ([]core.Message, error) {
	if err := storage.ValidateBatch(b); err != nil {
		return nil, core.NewStorageError("commit", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, core.NewStorageError("commit", err)
	}
	if len(b.Messages) == 0 && b.WorkingMemory == nil {
		return []core.Message{}, nil
	}

	now := storage.Now()
	t, err := s.threadFor(b, now)
	if err != nil {
		return nil, core.NewStorageError("commit", err)
	}

	t.mu.Lock()
	var (
		lastSeq     int64
		lastCreated time.Time
	)
	if n := len(t.messages); n > 0 {
		lastSeq = t.messages[n-1].Seq
		lastCreated = t.messages[n-1].CreatedAt
	}
	persisted := storage.Stamp(b, lastSeq, lastCreated, now)
	base := len(t.messages)
	t.messages = append(t.messages, persisted...)

	if b.WorkingMemory != nil {
		var current map[string]any
		var version int64
		if t.wm != nil {
			current, version = t.wm.Data, t.wm.Version
		}
		t.wm = &core.WorkingMemory{
			ThreadID:   b.ThreadID,
			ResourceID: b.ResourceID,
			Data:       b.WorkingMemory.Apply(current),
			Version:    version + 1,
			UpdatedAt:  now,
		}
	}
	t.thread.UpdatedAt = now
	t.mu.Unlock()

	s.mu.Lock()
	for i, m := range persisted {
		s.refs[m.ID] = messageRef{threadID: b.ThreadID, pos: base + i}
		s.unindexed = append(s.unindexed, m.ID)
	}
	s.mu.Unlock()

	out := make([]core.Message, len(persisted))
	for i, m := range persisted {
		out[i] = storage.CloneMessage(m)
	}
	return out, nil
}

func (s *Store) lookupThread(threadID string) *threadLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[threadID]
}

func (s *Store) Query(ctx context.Context, threadID string, opts core.QueryOptions) ([]core.Message, error) {
	t := s.lookupThread(threadID)
	if t == nil {
		return []core.Message{}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return storage.Window(t.messages, opts), nil
}

func (s *Store) message(id string) (core.Message, bool) {
	s.mu.RLock()
	ref, ok := s.refs[id]
	t := s.threads[ref.threadID]
	s.mu.RUnlock()
	if !ok || t == nil {
		return core.Message{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return storage.CloneMessage(t.messages[ref.pos]), true
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]core.Message, error) {
	out := make([]core.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.message(id); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListUnindexed(ctx context.Context, limit int) ([]core.Message, error) {
	s.mu.RLock()
	ids := s.unindexed
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	ids = slices.Clone(ids)
	s.mu.RUnlock()

	return s.GetMessages(ctx, ids)
}

func (s *Store) MarkIndexed(ctx context.Context, ids []string) error {
	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unindexed = slices.DeleteFunc(s.unindexed, func(id string) bool {
		_, ok := done[id]
		return ok
	})
	return nil
}

func (s *Store) GetThread(ctx context.Context, threadID string) (*core.Thread, error) {
	t := s.lookupThread(threadID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrThreadNotFound, threadID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	thread := t.thread
	return &thread, nil
}

func (s *Store) ListThreads(ctx context.Context, resourceID string) ([]core.Thread, error) {
	s.mu.RLock()
	logs := make([]*threadLog, 0, len(s.threads))
	for _, t := range s.threads {
		logs = append(logs, t)
	}
	s.mu.RUnlock()

	var out []core.Thread
	for _, t := range logs {
		t.mu.Lock()
		if t.thread.ResourceID == resourceID {
			out = append(out, t.thread)
		}
		t.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetWorkingMemory(ctx context.Context, threadID string) (*core.WorkingMemory, error) {
	t := s.lookupThread(threadID)
	if t == nil {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wm == nil {
		return nil, nil
	}
	wm := *t.wm
	wm.Data = core.WorkingMemoryPatch{}.Apply(t.wm.Data)
	return &wm, nil
}

func (s *Store) UpsertEmbedding(ctx context.Context, rec core.EmbeddingRecord) error {
	m, ok := s.message(rec.MessageID)
	if !ok {
		return core.NewStorageError("upsert embedding", fmt.Errorf("%w: %s", storage.ErrMessageNotFound, rec.MessageID))
	}

	rec.ThreadID = m.ThreadID
	rec.ResourceID = m.ResourceID
	rec.Vector = slices.Clone(rec.Vector)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = storage.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[rec.MessageID] = rec
	return nil
}

func (s *Store) SearchEmbeddings(ctx context.Context, q core.SearchQuery) ([]core.SearchHit, error) {
	s.mu.RLock()
	recs := make([]core.EmbeddingRecord, 0, len(s.embeddings))
	for _, rec := range s.embeddings {
		if inScope(rec, q.Scope) {
			recs = append(recs, rec)
		}
	}
	s.mu.RUnlock()

	candidates := make([]vec.Candidate, 0, len(recs))
	for _, rec := range recs {
		m, ok := s.message(rec.MessageID)
		if !ok {
			continue
		}
		candidates = append(candidates, vec.Candidate{
			ID:        rec.MessageID,
			ThreadID:  rec.ThreadID,
			Vector:    rec.Vector,
			Seq:       m.Seq,
			CreatedAt: m.CreatedAt,
		})
	}

	return storage.Hits(vec.TopK(q.Vector, candidates, q.TopK)), nil
}

func inScope(rec core.EmbeddingRecord, scope core.Scope) bool {
	if scope.Kind == core.ScopeResource {
		return rec.ResourceID == scope.ResourceID
	}
	return rec.ThreadID == scope.ThreadID
}
