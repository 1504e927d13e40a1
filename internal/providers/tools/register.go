package tools

import (
	"io"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Register declares the builtin tools enabled in cfg on d. The returned
// closer releases the working directory handle.
func Register(d *dispatch.Dispatcher, cfg *config.ToolsConfig) (io.Closer, error) {
	all := []dispatch.Tool{NewFetch().Tool()}
	var closer io.Closer = nopCloser{}

	if cfg.Filesystem {
		fsTools, err := NewFilesystem(cfg.WorkDir)
		if err != nil {
			return nil, err
		}
		closer = fsTools
		all = append(all, fsTools.Tools()...)
	}
	if cfg.Shell {
		all = append(all, NewShell(cfg.WorkDir, cfg.ShellTimeout).Tool())
	}

	for _, t := range all {
		if err := d.Declare(t); err != nil {
			closer.Close()
			return nil, err
		}
	}
	return closer, nil
}
