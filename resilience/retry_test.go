package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsWithoutRetryOnFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUpToMaxAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errBoom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableStopsAfterOneAttempt(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.Classifier = func(err error) bool { return false }

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errBoom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancellation(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 10
	cfg.InitialInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
}
