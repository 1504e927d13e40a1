package config

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// Load parses T from the environment.
func Load[T any]() (*T, error) {
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %T: %w", cfg, err)
	}
	return &cfg, nil
}

func mustLoad[T any](ctx context.Context) *T {
	cfg, err := Load[T]()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse config")
	}
	return cfg
}
