package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:    maxRetries,
		BackoffFactor: 2.0,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		Jitter:        time.Millisecond,
	}
}

func TestRetry_SuccessOnFirstTry(t *testing.T) {
	counter := 0
	err := NewDefaultRetrier().Do(context.Background(), func() error {
		counter++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, counter)
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	var attempts []int
	cfg := fastConfig(5)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	counter := 0
	err := NewRetrier(cfg).Do(context.Background(), func() error {
		counter++
		if counter < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, counter)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	expectedErr := errors.New("still failing")
	counter := 0

	err := NewRetrier(fastConfig(2)).Do(context.Background(), func() error {
		counter++
		return expectedErr
	})

	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 3, counter) // initial try + 2 retries
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	expectedErr := errors.New("bad request")
	counter := 0

	err := NewRetrier(fastConfig(5)).Do(context.Background(), func() error {
		counter++
		return Permanent(expectedErr)
	})

	assert.Same(t, expectedErr, err)
	assert.Equal(t, 1, counter)
	assert.NoError(t, Permanent(nil))
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	err := NewDefaultRetrier().Do(ctx, func() error {
		cancel()
		return errors.New("operation error after cancel")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_BackoffGrows(t *testing.T) {
	cfg := &Config{
		MaxRetries:    2,
		BackoffFactor: 2.0,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      time.Second,
	}

	start := time.Now()
	_ = NewRetrier(cfg).Do(context.Background(), func() error {
		return errors.New("error")
	})

	// two waits: 20ms then 40ms
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRetry_WaitIsCapped(t *testing.T) {
	r := NewRetrier(&Config{MaxDelay: 10 * time.Millisecond, Jitter: 2 * time.Millisecond})

	for range 50 {
		w := r.wait(time.Second)
		assert.GreaterOrEqual(t, w, 10*time.Millisecond)
		assert.Less(t, w, 12*time.Millisecond)
	}
	assert.Equal(t, 3*time.Millisecond, NewRetrier(&Config{MaxDelay: time.Second}).wait(3*time.Millisecond))
}
