package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

const (
	EmbedderBatchSize    = 30
	EmbedderPollInterval = 2 * time.Second
	// EmbedderMaxAttempts is how often a message may be rejected on its own
	// before it is marked indexed without a vector.
	EmbedderMaxAttempts = 3
)

// EmbedderWorker indexes committed messages in the background. A message
// becomes visible to recall at most one interval after its commit, or
// sooner when Notify is called.
type EmbedderWorker struct {
	store     core.MessageStore
	index     *Index
	interval  time.Duration
	batchSize int
	wake      chan struct{}

	mu       sync.Mutex
	attempts map[string]int
}

func NewEmbedderWorker(store core.MessageStore, index *Index, interval time.Duration, batchSize int) *EmbedderWorker {
	if interval <= 0 {
		interval = EmbedderPollInterval
	}
	if batchSize <= 0 {
		batchSize = EmbedderBatchSize
	}
	return &EmbedderWorker{
		store:     store,
		index:     index,
		interval:  interval,
		batchSize: batchSize,
		wake:      make(chan struct{}, 1),
		attempts:  make(map[string]int),
	}
}

// Notify asks for a pass without waiting for the ticker. It never blocks.
func (w *EmbedderWorker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *EmbedderWorker) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "embedder_worker").Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Dur("interval", w.interval).Msg("starting embedding worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down embedding worker")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
		if err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("embedding batch failed")
		}
	}
}

func (w *EmbedderWorker) Shutdown(ctx context.Context) error {
	return nil
}

// Drain processes batches until the backlog is empty or a batch does not
// fully index.
func (w *EmbedderWorker) Drain(ctx context.Context) error {
	for {
		n, err := w.processBatch(ctx)
		if err != nil || n < w.batchSize {
			return err
		}
	}
}

func (w *EmbedderWorker) processBatch(ctx context.Context) (int, error) {
	msgs, err := w.store.ListUnindexed(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	done, rejected, indexErr := w.index.IndexMessages(ctx, msgs)
	done = append(done, w.giveUp(ctx, done, rejected)...)
	if err := w.store.MarkIndexed(ctx, done); err != nil {
		return 0, err
	}

	log.FromCtx(ctx).Debug().Int("batch", len(msgs)).Int("indexed", len(done)).Msg("embedding batch processed")
	if indexErr != nil {
		return 0, indexErr
	}
	return len(done), nil
}

// giveUp counts rejections and returns the ids that reached the limit.
func (w *EmbedderWorker) giveUp(ctx context.Context, done, rejected []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range done {
		delete(w.attempts, id)
	}

	var out []string
	for _, id := range rejected {
		w.attempts[id]++
		if w.attempts[id] < EmbedderMaxAttempts {
			continue
		}
		delete(w.attempts, id)
		out = append(out, id)
		log.FromCtx(ctx).Warn().Str("msg_id", id).Int("attempts", EmbedderMaxAttempts).Msg("giving up on embedding message")
	}
	return out
}
