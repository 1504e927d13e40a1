package config

import (
	"os"
	"path/filepath"
)

// GetRuntimePath reads TUSK_RUNTIME_PATH before any .env file is loaded.
func GetRuntimePath() string {
	return ResolveRuntimePath(os.Getenv("TUSK_RUNTIME_PATH"))
}

// ResolveRuntimePath makes relative paths relative to the home directory.
func ResolveRuntimePath(path string) string {
	if path == "" {
		path = ".tuskmem"
	}

	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}
