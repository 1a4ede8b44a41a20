package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-ai/orchestrator/core"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 3
	cb := NewCircuitBreaker("task:code", cfg, nil)

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return errBoom })
		require.Error(t, err)
	}

	assert.Equal(t, "open", cb.GetState())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCircuitOpen))
}

func TestCircuitBreaker_HalfOpenThenClose(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 1
	cfg.ResetTimeout = 10 * time.Millisecond
	cfg.HalfOpenSuccessesToClose = 2
	cb := NewCircuitBreaker("task:code", cfg, nil)

	require.Error(t, cb.Execute(context.Background(), func() error { return errBoom }))
	assert.Equal(t, "open", cb.GetState())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "half-open", cb.GetState())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, "half-open", cb.GetState())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 1
	cfg.ResetTimeout = 10 * time.Millisecond
	cb := NewCircuitBreaker("task:code", cfg, nil)

	require.Error(t, cb.Execute(context.Background(), func() error { return errBoom }))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "half-open", cb.GetState())

	require.Error(t, cb.Execute(context.Background(), func() error { return errBoom }))
	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreaker_Listener(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 1
	cb := NewCircuitBreaker("task:code", cfg, nil)

	var transitions []string
	cb.AddStateChangeListener(func(key string, from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	cb.Execute(context.Background(), func() error { return errBoom })
	require.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreaker_ForceOpenAndReset(t *testing.T) {
	cb := NewCircuitBreaker("task:code", DefaultCircuitBreakerConfig(), nil)
	cb.ForceOpen()
	assert.Equal(t, "open", cb.GetState())
	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreaker_ForceClosedOverridesFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 1
	cb := NewCircuitBreaker("task:code", cfg, nil)

	cb.ForceClosed()
	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return errBoom }), errBoom)
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreaker_ClearForceResumesNaturalState(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 1
	cb := NewCircuitBreaker("task:code", cfg, nil)

	cb.ForceClosed()
	cb.ClearForce()
	require.Error(t, cb.Execute(context.Background(), func() error { return errBoom }))
	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreaker_CleanupOrphanedRequestsClearsStaleProbe(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ConsecutiveFailureThreshold = 1
	cfg.ResetTimeout = 10 * time.Millisecond
	cb := NewCircuitBreaker("task:code", cfg, nil)

	require.Error(t, cb.Execute(context.Background(), func() error { return errBoom }))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "half-open", cb.GetState())

	cb.mu.Lock()
	cb.halfOpenInFlight = true
	cb.halfOpenStartedAt = time.Now().Add(-time.Hour)
	cb.mu.Unlock()

	assert.Equal(t, 0, cb.CleanupOrphanedRequests(2*time.Hour))
	assert.Equal(t, 1, cb.CleanupOrphanedRequests(time.Minute))
	assert.True(t, cb.CanExecute())
}

func TestManager_GetIsLazyAndStable(t *testing.T) {
	m := NewManager(DefaultCircuitBreakerConfig(), nil)
	a := m.Get("task:code")
	b := m.Get("task:code")
	assert.Same(t, a, b)
}
