package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/log"
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

	log.FromCtx(ctx).Debug().
		Str("thread", b.ThreadID).
		Int("count", len(persisted)).
		Bool("working_memory", b.WorkingMemory != nil).
		Msg("committed batch")
	return persisted, nil
}

func (s *Store) commit(ctx context.Context, b core.Batch) ([]core.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := storage.Now()

	// 1. Thread row, created on first commit
	_, err = tx.ExecContext(ctx,
		`INSERT INTO threads (id, resource_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		b.ThreadID, b.ResourceID, b.Title, now.UnixMicro(), now.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert thread: %w", err)
	}

	var (
		resourceID  string
		lastSeq     int64
		lastCreated int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT resource_id, last_seq, last_created_at FROM threads WHERE id = ?`, b.ThreadID,
	).Scan(&resourceID, &lastSeq, &lastCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to read thread: %w", err)
	}
	if resourceID != b.ResourceID {
		return nil, storage.ErrResourceMismatch
	}

	// 2. Messages
	persisted := storage.Stamp(b, lastSeq, time.UnixMicro(lastCreated).UTC(), now)
	for _, m := range persisted {
		parts, err := storage.EncodeParts(m.Parts)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, resource_id, seq, role, parts, tool_call_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ThreadID, m.ResourceID, m.Seq, string(m.Role), parts, m.ToolCallID, m.CreatedAt.UnixMicro(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}
	}

	// 3. Working memory, merged under the same write lock
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
		`UPDATE threads SET last_seq = ?, last_created_at = ?, updated_at = ? WHERE id = ?`,
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
		raw     string
		version int64
		current map[string]any
	)
	err := tx.QueryRowContext(ctx,
		`SELECT data, version FROM working_memory WHERE thread_id = ?`, b.ThreadID,
	).Scan(&raw, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read working memory: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("failed to unmarshal working memory: %w", err)
		}
	}

	data, err := json.Marshal(b.WorkingMemory.Apply(current))
	if err != nil {
		return fmt.Errorf("failed to marshal working memory: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO working_memory (thread_id, resource_id, data, version, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
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
		raw     string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id, resource_id, data, version, updated_at FROM working_memory WHERE thread_id = ?`, threadID,
	).Scan(&wm.ThreadID, &wm.ResourceID, &raw, &wm.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewStorageError("get working memory", err)
	}

	if err := json.Unmarshal([]byte(raw), &wm.Data); err != nil {
		return nil, core.NewStorageError("get working memory", err)
	}
	wm.UpdatedAt = time.UnixMicro(updated).UTC()
	return &wm, nil
}
