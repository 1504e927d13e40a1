package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sashabaranov/go-openai"
)

var _ core.Embedder = (*Embedder)(nil)

type Embedder struct {
	client *openai.Client
	model  string
}

func NewEmbedder(provider, baseURL, apiKey, model string) *Embedder {
	return &Embedder{
		client: newClient(provider, baseURL, apiKey),
		model:  model,
	}
}

func (e *Embedder) Model() string {
	return e.model
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}
