package config

import (
	"context"
	"time"
)

type ToolsConfig struct {
	// WorkDir confines the filesystem and shell tools. Empty means the
	// current directory.
	WorkDir      string        `env:"TUSK_TOOLS_WORKDIR"`
	Filesystem   bool          `env:"TUSK_TOOLS_FILESYSTEM" envDefault:"true"`
	Shell        bool          `env:"TUSK_TOOLS_SHELL" envDefault:"false"`
	ShellTimeout time.Duration `env:"TUSK_TOOLS_SHELL_TIMEOUT" envDefault:"5m"`
}

func NewToolsConfig(ctx context.Context) *ToolsConfig {
	return mustLoad[ToolsConfig](ctx)
}
