package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
)

func (s *Store) GetThread(ctx context.Context, threadID string) (*core.Thread, error) {
	var (
		t                core.Thread
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, resource_id, title, created_at, updated_at FROM threads WHERE id = ?`, threadID,
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
		 WHERE resource_id = ? ORDER BY updated_at DESC, id`, resourceID)
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
