package rag

import (
	"context"

	"github.com/sandevgo/tuskmem/pkg/log"
)

// NewTokenizer prefers tiktoken and degrades to the heuristic counter when
// the encoding cannot be loaded.
func NewTokenizer(ctx context.Context) Tokenizer {
	tk, err := NewTiktoken()
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("tiktoken unavailable, using heuristic token counts")
		return Heuristic{}
	}
	return tk
}
