package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	s := NewStore(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) core.Store {
		return newTestStore(t)
	})
}

func TestNewDB_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewDB(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count))
	assert.Zero(t, count)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := NewDB(ctx, path)
	require.NoError(t, err)
	s := NewStore(db)

	_, err = s.Commit(ctx, core.Batch{
		ThreadID:   "t1",
		ResourceID: "r1",
		Messages:   []core.Message{core.NewTextMessage(core.RoleUser, "remember me")},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err = NewDB(ctx, path)
	require.NoError(t, err)
	s = NewStore(db)
	defer s.Close()

	msgs, err := s.Query(ctx, "t1", core.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "remember me", msgs[0].Text())

	// sequence continues after reopen
	more, err := s.Commit(ctx, core.Batch{
		ThreadID:   "t1",
		ResourceID: "r1",
		Messages:   []core.Message{core.NewTextMessage(core.RoleUser, "again")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), more[0].Seq)
}
