package core

import (
	"context"
	"time"
)

type QueryOptions struct {
	// Limit bounds the result to the newest Limit messages. Zero means no limit.
	Limit int
	// BeforeSeq, when positive, keeps messages with Seq < BeforeSeq.
	BeforeSeq int64
	// AfterSeq, when positive, keeps messages with Seq > AfterSeq.
	AfterSeq int64
}

// Batch is written atomically by Store.Commit.
type Batch struct {
	ThreadID   string
	ResourceID string
	// Title is applied only when the thread is created by this batch.
	Title         string
	Messages      []Message
	WorkingMemory *WorkingMemoryPatch
}

type MessageStore interface {
	Commit(ctx context.Context, batch Batch) ([]Message, error)
	Query(ctx context.Context, threadID string, opts QueryOptions) ([]Message, error)
	GetMessages(ctx context.Context, ids []string) ([]Message, error)
	ListUnindexed(ctx context.Context, limit int) ([]Message, error)
	MarkIndexed(ctx context.Context, ids []string) error
}

type ThreadStore interface {
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	ListThreads(ctx context.Context, resourceID string) ([]Thread, error)
}

type WorkingMemoryStore interface {
	GetWorkingMemory(ctx context.Context, threadID string) (*WorkingMemory, error)
}

type VectorStore interface {
	UpsertEmbedding(ctx context.Context, rec EmbeddingRecord) error
	SearchEmbeddings(ctx context.Context, q SearchQuery) ([]SearchHit, error)
}

// Store is the full persistence contract implemented by every backend.
type Store interface {
	MessageStore
	ThreadStore
	WorkingMemoryStore
	VectorStore
	Close() error
}

type EmbeddingRecord struct {
	MessageID  string
	ThreadID   string
	ResourceID string
	Vector     []float32
	Model      string
	CreatedAt  time.Time
}

type RecallScope string

const (
	ScopeThread   RecallScope = "thread"
	ScopeResource RecallScope = "resource"
)

type Scope struct {
	Kind       RecallScope
	ThreadID   string
	ResourceID string
}

type SearchQuery struct {
	Scope  Scope
	Vector []float32
	TopK   int
}

type SearchHit struct {
	MessageID string
	ThreadID  string
	Score     float32
	Seq       int64
	CreatedAt time.Time
}
