package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/vec"
)

// UpsertEmbedding replaces the vector of an existing message. Thread and
// resource are copied from the message row.
func (s *Store) UpsertEmbedding(ctx context.Context, rec core.EmbeddingRecord) error {
	blob, err := vec.Serialize(rec.Vector)
	if err != nil {
		return core.NewStorageError("upsert embedding", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = storage.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (message_id, thread_id, resource_id, vector, model, created_at)
		 SELECT id, thread_id, resource_id, ?, ?, ? FROM messages WHERE id = ?
		 ON CONFLICT(message_id) DO UPDATE SET vector = excluded.vector, model = excluded.model, created_at = excluded.created_at`,
		blob, rec.Model, created.UnixMicro(), rec.MessageID,
	)
	if err != nil {
		return core.NewStorageError("upsert embedding", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return core.NewStorageError("upsert embedding", err)
	}
	if n == 0 {
		return core.NewStorageError("upsert embedding", fmt.Errorf("%w: %s", storage.ErrMessageNotFound, rec.MessageID))
	}
	return nil
}

// SearchEmbeddings loads the scope's vectors and ranks them in process.
func (s *Store) SearchEmbeddings(ctx context.Context, q core.SearchQuery) ([]core.SearchHit, error) {
	column, key := "e.thread_id", q.Scope.ThreadID
	if q.Scope.Kind == core.ScopeResource {
		column, key = "e.resource_id", q.Scope.ResourceID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.message_id, e.thread_id, e.vector, m.seq, m.created_at
		 FROM embeddings e JOIN messages m ON m.id = e.message_id
		 WHERE `+column+` = ?`, key)
	if err != nil {
		return nil, core.NewStorageError("search embeddings", err)
	}
	defer rows.Close()

	var candidates []vec.Candidate
	for rows.Next() {
		var (
			c       vec.Candidate
			blob    []byte
			created int64
		)
		if err := rows.Scan(&c.ID, &c.ThreadID, &blob, &c.Seq, &created); err != nil {
			return nil, core.NewStorageError("search embeddings", err)
		}
		if c.Vector, err = vec.Deserialize(blob); err != nil {
			return nil, core.NewStorageError("search embeddings", err)
		}
		c.CreatedAt = time.UnixMicro(created).UTC()
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("search embeddings", err)
	}

	return storage.Hits(vec.TopK(q.Vector, candidates, q.TopK)), nil
}
