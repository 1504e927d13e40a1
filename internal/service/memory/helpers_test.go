package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/sandevgo/tuskmem/internal/core"
	memstore "github.com/sandevgo/tuskmem/internal/storage/memory"
	"github.com/sandevgo/tuskmem/pkg/retry"
	"github.com/stretchr/testify/require"
)

const hashDims = 64

// hashEmbedder maps each lowercased word to a fixed dimension, so texts
// sharing words score higher.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	// reject fails any request with a text containing it.
	reject string
}

func (h *hashEmbedder) Model() string { return "hash-64" }

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	err := h.err
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, text := range texts {
		if h.reject != "" && strings.Contains(text, h.reject) {
			return nil, errRejected
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, hashDims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			f := fnv.New32a()
			f.Write([]byte(w))
			v[f.Sum32()%hashDims]++
		}
		out[i] = v
	}
	return out, nil
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

var (
	errEmbedDown = errors.New("embedder down")
	errRejected  = errors.New("input rejected")
)

func noRetry() *retry.Retrier {
	return retry.NewRetrier(&retry.Config{MaxRetries: 0})
}

func commitTexts(t *testing.T, s core.Store, threadID string, texts ...string) []core.Message {
	t.Helper()

	msgs := make([]core.Message, len(texts))
	for i, text := range texts {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		msgs[i] = core.NewTextMessage(role, text)
	}

	persisted, err := s.Commit(context.Background(), core.Batch{
		ThreadID:   threadID,
		ResourceID: "res",
		Messages:   msgs,
	})
	require.NoError(t, err)
	return persisted
}

func newIndexed(t *testing.T) (*memstore.Store, *Index, *EmbedderWorker) {
	t.Helper()

	store := memstore.NewStore()
	index := NewIndex(store, &hashEmbedder{}, noRetry())
	worker := NewEmbedderWorker(store, index, 0, 0)
	return store, index, worker
}
