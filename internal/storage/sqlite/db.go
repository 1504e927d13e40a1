package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sandevgo/tuskmem/pkg/dbmigrate"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// _txlock=immediate takes the write lock at BEGIN; Commit reads and then
// writes inside one transaction.
const dsnParams = "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"

func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := dbmigrate.Up(ctx, db, embedMigrations, "migrations", "sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
