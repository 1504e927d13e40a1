package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/memory"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(ctx, &config.AppConfig{RuntimePath: dir, DBDriver: config.DriverSQLite})
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &sqlite.Store{}, store)
		_, err = store.Commit(ctx, core.Batch{
			ThreadID:   "t1",
			ResourceID: "r",
			Messages:   []core.Message{core.NewTextMessage(core.RoleUser, "hi")},
		})
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "tuskmem.db"))
	})

	t.Run("memory", func(t *testing.T) {
		store, err := Open(ctx, &config.AppConfig{DBDriver: config.DriverMemory})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		_, err := Open(ctx, &config.AppConfig{DBDriver: config.DriverPostgres})
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(ctx, &config.AppConfig{DBDriver: "mongo"})
		assert.ErrorContains(t, err, "unknown db driver")
	})
}
