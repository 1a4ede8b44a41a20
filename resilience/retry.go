package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryClassifier decides whether an error is worth retrying. A nil
// Classifier retries every error; the execution engine supplies its own
// adapter-error classification (§4.3/§7).
type RetryClassifier func(error) bool

// RetryConfig configures the exponential-backoff retry manager (§4.3
// defaults: initial 1000ms, multiplier 2, max 30000ms, attempts 3, ±20%
// jitter).
type RetryConfig struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	RandomizationFactor float64
	Classifier          RetryClassifier
}

// DefaultRetryConfig returns the §4.3 defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     1000 * time.Millisecond,
		Multiplier:          2,
		MaxInterval:         30000 * time.Millisecond,
		RandomizationFactor: 0.2,
	}
}

// Retry runs fn, retrying on backoff/v5's ExponentialBackOff schedule up to
// MaxAttempts times. A non-retryable error (per Classifier) is wrapped in
// backoff.Permanent so the library stops immediately instead of burning
// through the remaining attempts — this is backoff/v5's idiomatic
// "give up now" signal.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = func(err error) bool { return true }
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.RandomizationFactor = cfg.RandomizationFactor

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	operation := func() (struct{}, error) {
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !classifier(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	return err
}
