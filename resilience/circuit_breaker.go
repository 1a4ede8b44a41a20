// Package resilience implements the per-key circuit breaker and the
// backoff/v5-based retry manager shared by the execution engine and the
// distributed coordinator.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gomind-ai/orchestrator/core"
)

// CircuitState is one of closed, open, half-open.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeListener is notified on every circuit state transition.
type StateChangeListener func(key string, from, to CircuitState)

// ErrorClassifier decides which errors count toward the failure threshold.
// Configuration/not-found/state errors are programmer or caller errors,
// not infrastructure failures, so they don't trip the breaker.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts everything except configuration, not-found,
// state, and context-cancellation errors.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) || core.IsNotFound(err) || core.IsStateError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}
	return true
}

// CircuitBreakerConfig parameterizes one breaker instance. Threshold counts
// consecutive failures (§4.3), not an error rate over a volume window: this
// supersedes the teacher's original rate/volume-threshold model, which is
// retained below as opt-in secondary observability (see RateObservability).
type CircuitBreakerConfig struct {
	ConsecutiveFailureThreshold int
	ResetTimeout                time.Duration
	HalfOpenSuccessesToClose    int
	Classifier                  ErrorClassifier

	// RateObservability, when non-nil, additionally tracks a sliding
	// window of outcomes for dashboards; it never drives state transitions.
	RateObservability *RateWindowConfig
}

// RateWindowConfig configures the secondary sliding-window observability
// retained from the teacher's error-rate/volume-threshold circuit breaker
// model (Open Question: spec's consecutive-count model is primary).
type RateWindowConfig struct {
	Window time.Duration
}

// DefaultCircuitBreakerConfig returns the §4.3 defaults: threshold 5,
// reset-timeout 60s, 3 consecutive half-open successes to close.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ConsecutiveFailureThreshold: 5,
		ResetTimeout:                60 * time.Second,
		HalfOpenSuccessesToClose:    3,
		Classifier:                  DefaultErrorClassifier,
	}
}

// CircuitBreaker is a per-key closed/open/half-open controller. One
// instance guards one key (e.g. "task:"+kind); the execution engine keeps
// a map of these behind a Manager.
type CircuitBreaker struct {
	key    string
	cfg    CircuitBreakerConfig
	logger core.Logger

	mu                 sync.Mutex
	state              CircuitState
	consecutiveFails   int
	halfOpenSuccesses  int
	halfOpenInFlight   bool
	halfOpenStartedAt  time.Time
	nextAttemptAt      time.Time
	listeners          []StateChangeListener

	// forceOpen/forceClosed hold a manual override in place until
	// ClearForce is called; while either is set, recordSuccess/
	// recordFailure don't touch the state machine.
	forceOpen   bool
	forceClosed bool

	window *rateWindow
}

// NewCircuitBreaker builds a CircuitBreaker for key with cfg.
func NewCircuitBreaker(key string, cfg CircuitBreakerConfig, logger core.Logger) *CircuitBreaker {
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultErrorClassifier
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	cb := &CircuitBreaker{key: key, cfg: cfg, logger: logger, state: StateClosed}
	if cfg.RateObservability != nil {
		cb.window = newRateWindow(cfg.RateObservability.Window)
	}
	return cb
}

// AddStateChangeListener registers a listener invoked synchronously on
// every transition (added state is forced open/closed included).
func (cb *CircuitBreaker) AddStateChangeListener(l StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, l)
}

// GetState returns the current state as a string ("closed"/"open"/"half-open").
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked().String()
}

// stateLocked resolves StateOpen -> StateHalfOpen once ResetTimeout elapses,
// and honors a manual ForceOpen/ForceClosed override ahead of that
// resolution. Caller must hold cb.mu.
func (cb *CircuitBreaker) stateLocked() CircuitState {
	if cb.forceClosed {
		return StateClosed
	}
	if cb.forceOpen {
		return StateOpen
	}
	if cb.state == StateOpen && !cb.nextAttemptAt.IsZero() && time.Now().After(cb.nextAttemptAt) {
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.state
}

// CanExecute reports whether a call would currently be allowed through.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		// Only one probe is admitted at a time per §4.3 ("a single
		// half-open attempt is admitted").
		return !cb.halfOpenInFlight
	default:
		return false
	}
}

// Execute runs fn under circuit-breaker protection, returning ErrCircuitOpen
// immediately if the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	state := cb.stateLocked()
	if state == StateOpen {
		cb.mu.Unlock()
		return core.NewFrameworkError("circuitbreaker.Execute", "circuit_open", core.ErrCircuitOpen).WithID(cb.key)
	}
	if state == StateHalfOpen {
		if cb.halfOpenInFlight {
			cb.mu.Unlock()
			return core.NewFrameworkError("circuitbreaker.Execute", "circuit_open", core.ErrCircuitOpen).WithID(cb.key)
		}
		cb.halfOpenInFlight = true
		cb.halfOpenStartedAt = time.Now()
	}
	cb.mu.Unlock()

	err := fn()

	if state == StateHalfOpen {
		cb.mu.Lock()
		cb.halfOpenInFlight = false
		cb.mu.Unlock()
	}

	if cb.cfg.Classifier(err) {
		cb.recordFailure()
	} else if err == nil {
		cb.recordSuccess()
	}
	return err
}

// ExecuteWithTimeout runs fn with both circuit breaker protection and a
// hard timeout.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	return cb.Execute(ctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()

		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			return core.NewFrameworkError("circuitbreaker.ExecuteWithTimeout", "timeout", core.ErrTimeout).WithID(cb.key)
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.forceOpen || cb.forceClosed {
		return
	}

	if cb.window != nil {
		cb.window.recordSuccess()
	}

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.HalfOpenSuccessesToClose {
			cb.transitionLocked(StateClosed)
		}
	case StateClosed:
		cb.consecutiveFails = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.forceOpen || cb.forceClosed {
		return
	}

	if cb.window != nil {
		cb.window.recordFailure()
	}

	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.cfg.ConsecutiveFailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

// transitionLocked moves state, resets the bookkeeping for the new state,
// and notifies listeners. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	switch to {
	case StateOpen:
		cb.nextAttemptAt = time.Now().Add(cb.cfg.ResetTimeout)
		cb.halfOpenSuccesses = 0
		cb.halfOpenInFlight = false
	case StateHalfOpen:
		cb.halfOpenSuccesses = 0
		cb.halfOpenInFlight = false
	case StateClosed:
		cb.consecutiveFails = 0
		cb.halfOpenSuccesses = 0
	}

	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"key": cb.key, "from": from.String(), "to": to.String(),
	})

	for _, l := range cb.listeners {
		l(cb.key, from, to)
	}
}

// Reset manually forces the breaker back to closed, clearing counters and
// any standing ForceOpen/ForceClosed override.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forceOpen = false
	cb.forceClosed = false
	cb.transitionLocked(StateClosed)
}

// ForceOpen manually forces the breaker open regardless of failure counts,
// useful for draining a known-bad adapter out of rotation. The override
// holds until ClearForce is called; while it holds, recordSuccess and
// recordFailure leave the state machine untouched.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forceOpen = true
	cb.forceClosed = false
	cb.transitionLocked(StateOpen)
}

// ForceClosed manually forces the breaker closed regardless of failure
// counts, for routing traffic back to an adapter ahead of its natural
// half-open probe. Like ForceOpen, the override holds until ClearForce.
func (cb *CircuitBreaker) ForceClosed() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forceClosed = true
	cb.forceOpen = false
	cb.transitionLocked(StateClosed)
}

// ClearForce removes a standing ForceOpen/ForceClosed override, letting the
// state machine resume driving itself from the next recorded outcome.
func (cb *CircuitBreaker) ClearForce() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forceOpen = false
	cb.forceClosed = false
}

// CleanupOrphanedRequests clears a half-open probe that has been in flight
// longer than maxAge without completing (e.g. its goroutine crashed before
// reaching Execute's post-call bookkeeping), returning 1 if one was
// cleaned and 0 otherwise. Adapted from the teacher's token-sweep of the
// same name to this breaker's single-slot half-open model: one admitted
// probe at a time rather than a set of outstanding tokens.
func (cb *CircuitBreaker) CleanupOrphanedRequests(maxAge time.Duration) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateHalfOpen || !cb.halfOpenInFlight {
		return 0
	}
	if time.Since(cb.halfOpenStartedAt) <= maxAge {
		return 0
	}
	cb.halfOpenInFlight = false
	cb.logger.Info("cleaned orphaned half-open probe", map[string]interface{}{
		"key": cb.key, "max_age_ms": maxAge.Milliseconds(),
	})
	return 1
}

// GetMetrics returns a snapshot suitable for dashboards.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	m := map[string]interface{}{
		"key":               cb.key,
		"state":             cb.stateLocked().String(),
		"consecutive_fails": cb.consecutiveFails,
	}
	if cb.window != nil {
		succ, fail := cb.window.counts()
		m["window_successes"] = succ
		m["window_failures"] = fail
	}
	return m
}

// Manager owns one CircuitBreaker per key, created lazily on first use.
type Manager struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	logger   core.Logger
	breakers map[string]*CircuitBreaker
}

// NewManager builds a Manager that lazily creates per-key breakers with cfg.
func NewManager(cfg CircuitBreakerConfig, logger core.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns (creating if necessary) the CircuitBreaker for key.
func (m *Manager) Get(key string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[key]; ok {
		return cb
	}
	cb := NewCircuitBreaker(key, m.cfg, m.logger)
	m.breakers[key] = cb
	return cb
}
