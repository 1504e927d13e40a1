// Package backend opens the store selected by TUSK_DB_DRIVER.
package backend

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/memory"
	"github.com/sandevgo/tuskmem/internal/storage/postgres"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/sandevgo/tuskmem/pkg/log"
)

func Open(ctx context.Context, cfg *config.AppConfig) (core.Store, error) {
	logger := log.FromCtx(ctx)

	switch cfg.DBDriver {
	case config.DriverSQLite, "":
		path := cfg.GetDatabasePath()
		db, err := sqlite.NewDB(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", path).Msg("opened sqlite store")
		return sqlite.NewStore(db), nil

	case config.DriverPostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("postgres driver requires TUSK_DB_DSN")
		}
		db, err := postgres.NewDB(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		logger.Debug().Msg("opened postgres store")
		return postgres.NewStore(db), nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store, nothing will be persisted")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}
