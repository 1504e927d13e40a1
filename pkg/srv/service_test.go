package srv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

func TestRun_ShutdownInReverseOrder(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	first := NewCleanup("first", func() error { rec.add("first"); return nil })
	second := NewCleanup("second", func() error { rec.add("second"); return nil })

	done := make(chan error, 1)
	go func() { done <- Run(ctx, first, second) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, []string{"second", "first"}, rec.order)
}

func TestRun_FailingServiceStopsOthers(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	failing := Func(func(ctx context.Context) error { return boom })
	waiting := NewCleanup("waiting", func() error { rec.add("waiting"); return nil })

	err := Run(context.Background(), waiting, failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"waiting"}, rec.order)
}
