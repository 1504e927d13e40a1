package config

import (
	"os"
	"strconv"
)

// IsDebug reports whether TUSK_DEBUG is set to a true value ("1", "true").
func IsDebug() bool {
	v, err := strconv.ParseBool(os.Getenv("TUSK_DEBUG"))
	return err == nil && v
}
