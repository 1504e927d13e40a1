package memory

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/retry"
)

// Index embeds message text into the store's vector table and answers
// similarity queries over it.
type Index struct {
	store    core.VectorStore
	embedder core.Embedder
	retrier  *retry.Retrier
}

func NewIndex(store core.VectorStore, embedder core.Embedder, retrier *retry.Retrier) *Index {
	if retrier == nil {
		retrier = retry.NewDefaultRetrier()
	}
	return &Index{
		store:    store,
		embedder: embedder,
		retrier:  retrier,
	}
}

// Index embeds text for messageID. Indexing the same message again
// replaces its vector.
func (i *Index) Index(ctx context.Context, scope core.Scope, text, messageID string) error {
	vectors, err := i.embed(ctx, []string{text})
	if err != nil {
		return err
	}
	return i.store.UpsertEmbedding(ctx, core.EmbeddingRecord{
		MessageID:  messageID,
		ThreadID:   scope.ThreadID,
		ResourceID: scope.ResourceID,
		Vector:     vectors[0],
		Model:      i.embedder.Model(),
	})
}

// IndexMessages embeds msgs in one request and returns the ids that were
// handled, including messages with nothing to embed. When the batch request
// fails, each message is tried on its own; rejected holds the ones the
// embedder refused while others went through.
func (i *Index) IndexMessages(ctx context.Context, msgs []core.Message) (done, rejected []string, err error) {
	var (
		texts   []string
		pending []core.Message
	)
	for _, m := range msgs {
		text := m.IndexText()
		if text == "" {
			done = append(done, m.ID)
			continue
		}
		texts = append(texts, text)
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return done, nil, nil
	}

	vectors, err := i.embed(ctx, texts)
	if err != nil {
		if len(pending) == 1 || ctx.Err() != nil {
			return done, nil, err
		}
		return i.indexEach(ctx, pending, done, err)
	}

	done = append(done, i.save(ctx, pending, vectors)...)
	return done, nil, nil
}

func (i *Index) indexEach(ctx context.Context, pending []core.Message, done []string, batchErr error) ([]string, []string, error) {
	logger := log.FromCtx(ctx)

	var rejected []string
	embedded := 0
	for _, m := range pending {
		vectors, err := i.embed(ctx, []string{m.IndexText()})
		if err != nil {
			if ctx.Err() != nil {
				return done, nil, err
			}
			logger.Warn().Err(err).Str("msg_id", m.ID).Msg("embedder rejected message")
			rejected = append(rejected, m.ID)
			continue
		}
		embedded++
		done = append(done, i.save(ctx, []core.Message{m}, vectors)...)
	}

	// nothing went through: the embedder is down, not the messages
	if embedded == 0 {
		return done, nil, batchErr
	}
	return done, rejected, nil
}

// save stores one vector per message and returns the ids that were written.
func (i *Index) save(ctx context.Context, msgs []core.Message, vectors [][]float32) []string {
	logger := log.FromCtx(ctx)

	var saved []string
	for n, m := range msgs {
		err := i.store.UpsertEmbedding(ctx, core.EmbeddingRecord{
			MessageID:  m.ID,
			ThreadID:   m.ThreadID,
			ResourceID: m.ResourceID,
			Vector:     vectors[n],
			Model:      i.embedder.Model(),
		})
		if err != nil {
			logger.Error().Err(err).Str("msg_id", m.ID).Msg("failed to save embedding")
			continue
		}
		saved = append(saved, m.ID)
	}
	return saved
}

// Search returns up to topK hits in scope, best first. Equal scores keep
// the more recent message first.
func (i *Index) Search(ctx context.Context, scope core.Scope, query string, topK int) ([]core.SearchHit, error) {
	if topK <= 0 || query == "" {
		return []core.SearchHit{}, nil
	}

	vectors, err := i.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	hits, err := i.store.SearchEmbeddings(ctx, core.SearchQuery{
		Scope:  scope,
		Vector: vectors[0],
		TopK:   topK,
	})
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []core.SearchHit{}
	}
	return hits, nil
}

func (i *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := i.retrier.Do(ctx, func() error {
		var err error
		vectors, err = i.embedder.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
