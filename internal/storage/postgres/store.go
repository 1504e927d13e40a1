package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/vec"
)

var _ core.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Commit(ctx context.Context, b core.Batch) ([]core.Message, error) {
	if err := storage.ValidateBatch(b); err != nil {
		return nil, core.NewStorageError("commit", err)
	}
	if len(b.Messages) == 0 && b.WorkingMemory == nil {
		return []core.Message{}, nil
	}

	persisted, err := s.commit(ctx, b)
	if err != nil {
		return nil, core.NewStorageError("commit", err)
	}

	log.FromCtx(ctx).Debug().Str("thread", b.ThreadID).Int("count", len(persisted)).Msg("committed batch")
	return persisted, nil
}

func (s *Store) commit(ctx context.Context, b core.Batch) ([]core.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := storage.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO threads (id, resource_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO NOTHING`,
		b.ThreadID, b.ResourceID, b.Title, now.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert thread: %w", err)
	}

	// The row lock serializes writers of the same thread until commit.
	var (
		resourceID  string
		lastSeq     int64
		lastCreated int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT resource_id, last_seq, last_created_at FROM threads WHERE id = $1 FOR UPDATE`, b.ThreadID,
	).Scan(&resourceID, &lastSeq, &lastCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to lock thread: %w", err)
	}
	if resourceID != b.ResourceID {
		return nil, storage.ErrResourceMismatch
	}

	persisted := storage.Stamp(b, lastSeq, time.UnixMicro(lastCreated).UTC(), now)
	for _, m := range persisted {
		parts, err := storage.EncodeParts(m.Parts)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, resource_id, seq, role, parts, tool_call_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, m.ThreadID, m.ResourceID, m.Seq, string(m.Role), parts, m.ToolCallID, m.CreatedAt.UnixMicro(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if b.WorkingMemory != nil {
		if err := mergeWorkingMemory(ctx, tx, b, now); err != nil {
			return nil, err
		}
	}

	if n := len(persisted); n > 0 {
		lastSeq = persisted[n-1].Seq
		lastCreated = persisted[n-1].CreatedAt.UnixMicro()
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE threads SET last_seq = $1, last_created_at = $2, updated_at = $3 WHERE id = $4`,
		lastSeq, lastCreated, now.UnixMicro(), b.ThreadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return persisted, nil
}

func mergeWorkingMemory(ctx context.Context, tx *sql.Tx, b core.Batch, now time.Time) error {
	var (
		raw     []byte
		version int64
		current map[string]any
	)
	err := tx.QueryRowContext(ctx,
		`SELECT data, version FROM working_memory WHERE thread_id = $1`, b.ThreadID,
	).Scan(&raw, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read working memory: %w", err)
	default:
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("failed to unmarshal working memory: %w", err)
		}
	}

	data, err := json.Marshal(b.WorkingMemory.Apply(current))
	if err != nil {
		return fmt.Errorf("failed to marshal working memory: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO working_memory (thread_id, resource_id, data, version, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (thread_id) DO UPDATE SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		b.ThreadID, b.ResourceID, string(data), version+1, now.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to write working memory: %w", err)
	}
	return nil
}

func (s *Store) GetWorkingMemory(ctx context.Context, threadID string) (*core.WorkingMemory, error) {
	var (
		wm      core.WorkingMemory
		raw     []byte
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id, resource_id, data, version, updated_at FROM working_memory WHERE thread_id = $1`, threadID,
	).Scan(&wm.ThreadID, &wm.ResourceID, &raw, &wm.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewStorageError("get working memory", err)
	}
	if err := json.Unmarshal(raw, &wm.Data); err != nil {
		return nil, core.NewStorageError("get working memory", err)
	}
	wm.UpdatedAt = time.UnixMicro(updated).UTC()
	return &wm, nil
}

const messageColumns = `id, thread_id, resource_id, seq, role, parts, tool_call_id, created_at`

func (s *Store) Query(ctx context.Context, threadID string, opts core.QueryOptions) ([]core.Message, error) {
	var (
		sb   strings.Builder
		args = []any{threadID}
	)
	sb.WriteString(`SELECT ` + messageColumns + ` FROM messages WHERE thread_id = $1`)
	if opts.BeforeSeq > 0 {
		args = append(args, opts.BeforeSeq)
		fmt.Fprintf(&sb, ` AND seq < $%d`, len(args))
	}
	if opts.AfterSeq > 0 {
		args = append(args, opts.AfterSeq)
		fmt.Fprintf(&sb, ` AND seq > $%d`, len(args))
	}
	sb.WriteString(` ORDER BY seq DESC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	messages, err := s.queryMessages(ctx, sb.String(), args...)
	if err != nil {
		return nil, core.NewStorageError("query", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]core.Message, error) {
	if len(ids) == 0 {
		return []core.Message{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	messages, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id IN (`+strings.Join(placeholders, ",")+`) ORDER BY created_at, seq`,
		args...)
	if err != nil {
		return nil, core.NewStorageError("get messages", err)
	}
	return messages, nil
}

func (s *Store) ListUnindexed(ctx context.Context, limit int) ([]core.Message, error) {
	messages, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE NOT indexed ORDER BY created_at, thread_id, seq LIMIT $1`, limit)
	if err != nil {
		return nil, core.NewStorageError("list unindexed", err)
	}
	return messages, nil
}

func (s *Store) MarkIndexed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("mark indexed", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET indexed = TRUE WHERE id = $1`, id); err != nil {
			return core.NewStorageError("mark indexed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("mark indexed", err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]core.Message, 0)
	for rows.Next() {
		var (
			msg     core.Message
			role    string
			parts   []byte
			created int64
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.ResourceID, &msg.Seq, &role, &parts, &msg.ToolCallID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = core.Role(role)
		msg.CreatedAt = time.UnixMicro(created).UTC()
		if msg.Parts, err = storage.DecodeParts(string(parts)); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) GetThread(ctx context.Context, threadID string) (*core.Thread, error) {
	var (
		t                core.Thread
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, resource_id, title, created_at, updated_at FROM threads WHERE id = $1`, threadID,
	).Scan(&t.ID, &t.ResourceID, &t.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrThreadNotFound, threadID)
	}
	if err != nil {
		return nil, core.NewStorageError("get thread", err)
	}
	t.CreatedAt = time.UnixMicro(created).UTC()
	t.UpdatedAt = time.UnixMicro(updated).UTC()
	return &t, nil
}

func (s *Store) ListThreads(ctx context.Context, resourceID string) ([]core.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resource_id, title, created_at, updated_at FROM threads
		 WHERE resource_id = $1 ORDER BY updated_at DESC, id`, resourceID)
	if err != nil {
		return nil, core.NewStorageError("list threads", err)
	}
	defer rows.Close()

	var threads []core.Thread
	for rows.Next() {
		var (
			t                core.Thread
			created, updated int64
		)
		if err := rows.Scan(&t.ID, &t.ResourceID, &t.Title, &created, &updated); err != nil {
			return nil, core.NewStorageError("list threads", err)
		}
		t.CreatedAt = time.UnixMicro(created).UTC()
		t.UpdatedAt = time.UnixMicro(updated).UTC()
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list threads", err)
	}
	return threads, nil
}

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
		 SELECT id, thread_id, resource_id, $1, $2, $3 FROM messages WHERE id = $4
		 ON CONFLICT (message_id) DO UPDATE SET vector = EXCLUDED.vector, model = EXCLUDED.model, created_at = EXCLUDED.created_at`,
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

func (s *Store) SearchEmbeddings(ctx context.Context, q core.SearchQuery) ([]core.SearchHit, error) {
	column, key := "e.thread_id", q.Scope.ThreadID
	if q.Scope.Kind == core.ScopeResource {
		column, key = "e.resource_id", q.Scope.ResourceID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.message_id, e.thread_id, e.vector, m.seq, m.created_at
		 FROM embeddings e JOIN messages m ON m.id = e.message_id
		 WHERE `+column+` = $1`, key)
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
