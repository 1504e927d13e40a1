package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/log"
)

const messageColumns = `id, thread_id, resource_id, seq, role, parts, tool_call_id, created_at`

func (s *Store) Query(ctx context.Context, threadID string, opts core.QueryOptions) ([]core.Message, error) {
	var (
		sb   strings.Builder
		args = []any{threadID}
	)
	sb.WriteString(`SELECT ` + messageColumns + ` FROM messages WHERE thread_id = ?`)
	if opts.BeforeSeq > 0 {
		sb.WriteString(` AND seq < ?`)
		args = append(args, opts.BeforeSeq)
	}
	if opts.AfterSeq > 0 {
		sb.WriteString(` AND seq > ?`)
		args = append(args, opts.AfterSeq)
	}
	// Fetch the newest messages first, then restore chronological order.
	sb.WriteString(` ORDER BY seq DESC`)
	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	messages, err := s.queryMessages(ctx, sb.String(), args...)
	if err != nil {
		return nil, core.NewStorageError("query", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	log.FromCtx(ctx).Debug().Str("thread", threadID).Int("count", len(messages)).Msg("loaded history messages")
	return messages, nil
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]core.Message, error) {
	if len(ids) == 0 {
		return []core.Message{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	messages, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id IN (`+placeholders+`) ORDER BY created_at, seq`, args...)
	if err != nil {
		return nil, core.NewStorageError("get messages", err)
	}
	return messages, nil
}

func (s *Store) ListUnindexed(ctx context.Context, limit int) ([]core.Message, error) {
	messages, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE indexed = 0 ORDER BY created_at, thread_id, seq LIMIT ?`, limit)
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
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET indexed = 1 WHERE id = ?`, id); err != nil {
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
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func scanMessage(rows *sql.Rows) (core.Message, error) {
	var (
		msg     core.Message
		role    string
		parts   string
		created int64
	)
	err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.ResourceID, &msg.Seq, &role, &parts, &msg.ToolCallID, &created)
	if err != nil {
		return msg, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Role = core.Role(role)
	msg.CreatedAt = time.UnixMicro(created).UTC()
	if msg.Parts, err = storage.DecodeParts(parts); err != nil {
		return msg, err
	}
	return msg, nil
}
