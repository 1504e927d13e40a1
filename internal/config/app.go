package config

import (
	"context"
	"path/filepath"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type AppConfig struct {
	RuntimePath string `env:"TUSK_RUNTIME_PATH" envDefault:".tuskmem"`

	DBDriver string `env:"TUSK_DB_DRIVER" envDefault:"sqlite"`
	// DBDSN is required for postgres. For sqlite it overrides the file in RuntimePath.
	DBDSN string `env:"TUSK_DB_DSN"`

	DefaultResource string `env:"TUSK_RESOURCE_ID" envDefault:"local"`
	DefaultThread   string `env:"TUSK_THREAD_ID" envDefault:"cli-local"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := mustLoad[AppConfig](ctx)
	c.RuntimePath = ResolveRuntimePath(c.RuntimePath)
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetSystemPath() string {
	return filepath.Join(c.RuntimePath, "SYSTEM.md")
}

func (c AppConfig) GetIdentityPath() string {
	return filepath.Join(c.RuntimePath, "IDENTITY.md")
}

func (c AppConfig) GetDatabasePath() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return filepath.Join(c.RuntimePath, "tuskmem.db")
}

func (c AppConfig) GetMCPConfigPath() string {
	return filepath.Join(c.RuntimePath, "mcp_config.json")
}

func (c AppConfig) GetHistoryPath() string {
	return filepath.Join(c.RuntimePath, "input_history")
}
