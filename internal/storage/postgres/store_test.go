package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

// TUSK_TEST_POSTGRES_DSN points at a disposable database; its tables are
// truncated before every subtest.
func TestStore(t *testing.T) {
	dsn := os.Getenv("TUSK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TUSK_TEST_POSTGRES_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) core.Store {
		db, err := NewDB(context.Background(), dsn)
		require.NoError(t, err)

		_, err = db.Exec(`TRUNCATE embeddings, working_memory, messages, threads`)
		require.NoError(t, err)

		s := NewStore(db)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
