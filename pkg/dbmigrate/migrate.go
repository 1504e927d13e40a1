package dbmigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// goose keeps its base FS, dialect and logger in package state.
var mu sync.Mutex

// Up applies every migration found under dir in fsys.
func Up(ctx context.Context, db *sql.DB, fsys fs.FS, dir, dialect string) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(log.NewGooseLoggerFromCtx(ctx))

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}
