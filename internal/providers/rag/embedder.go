package rag

import (
	"context"
	"fmt"
	"math"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

var _ core.Embedder = (*ChunkedEmbedder)(nil)

// ChunkedEmbedder embeds texts longer than the model input by averaging the
// vectors of their chunks. Every input text yields exactly one vector.
type ChunkedEmbedder struct {
	next    core.Embedder
	chunker *Chunker
}

func NewChunkedEmbedder(next core.Embedder, chunker *Chunker) *ChunkedEmbedder {
	return &ChunkedEmbedder{next: next, chunker: chunker}
}

func (e *ChunkedEmbedder) Model() string {
	return e.next.Model()
}

func (e *ChunkedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var (
		inputs []string
		owners []int
	)
	for i, text := range texts {
		chunks := e.chunker.Chunk(text)
		if len(chunks) == 0 {
			// keep one input per text so empty strings still get a vector
			inputs = append(inputs, text)
			owners = append(owners, i)
			continue
		}
		for _, c := range chunks {
			inputs = append(inputs, c.Text)
			owners = append(owners, i)
		}
	}

	if len(inputs) > len(texts) {
		log.FromCtx(ctx).Debug().Int("texts", len(texts)).Int("chunks", len(inputs)).Msg("embedding chunked texts")
	}

	vectors, err := e.next.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(inputs))
	}

	sums := make([][]float32, len(texts))
	for i, v := range vectors {
		owner := owners[i]
		if sums[owner] == nil {
			sums[owner] = make([]float32, len(v))
		}
		if len(v) != len(sums[owner]) {
			return nil, fmt.Errorf("embedder returned vectors of mixed dimensions")
		}
		for j, x := range v {
			sums[owner][j] += x
		}
	}

	for _, v := range sums {
		normalize(v)
	}
	return sums, nil
}

func normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
}
