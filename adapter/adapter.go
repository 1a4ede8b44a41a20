// Package adapter defines the consumer-side contract a back-end AI
// assistant must satisfy to be routed, executed, and collaborated with by
// this module (§6.1), generalized from the teacher's LLM-provider
// abstraction (ai/provider.go, ai/client.go) to cover any capability-tagged
// backend: code generation, review, debugging, refactoring, docs, testing,
// architecture, search, multimodal, validation — not only chat completion.
package adapter

import (
	"context"
	"time"

	"github.com/gomind-ai/orchestrator/task"
)

// ID identifies a registered adapter. The closed set of concrete values is
// a deployment concern, not a compile-time one — any string the caller
// registers is valid.
type ID string

// HealthState is the adapter's self-reported operating condition.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Health is the adapter's current health snapshot.
type Health struct {
	Status    HealthState
	LatencyMS int64
	LastCheck time.Time
	Details   string
}

// InvokeResult is what an adapter returns from a successful Invoke.
type InvokeResult struct {
	Output     string
	TokensUsed int
	Model      string
	RetryCount int
	Metadata   map[string]interface{}
}

// Adapter is the consumer-side contract for a back-end assistant (§6.1).
// Invoke may return a categorised error (§7); the execution engine
// classifies it for retry (its own adapter-error classifier) and the
// circuit breaker for failure counting (resilience.DefaultErrorClassifier).
type Adapter interface {
	ID() ID
	Invoke(ctx context.Context, t *task.Task) (*InvokeResult, error)
	Capabilities() []string
	Supports(kind task.Kind) bool
	Health(ctx context.Context) Health
	Configure(opts ...Option) error
	Configuration() Config
}

// Config holds the functional-options configuration surface shared by
// every adapter implementation, mirroring the teacher's AIConfig.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	Model       string
	Temperature float32
	MaxTokens   int
	Headers     map[string]string
	Extra       map[string]interface{}
}

// Option configures an Adapter's Config.
type Option func(*Config)

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithTemperature(t float32) Option {
	return func(c *Config) { c.Temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

func WithHeaders(h map[string]string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range h {
			c.Headers[k] = v
		}
	}
}

func WithExtra(key string, value interface{}) Option {
	return func(c *Config) {
		if c.Extra == nil {
			c.Extra = make(map[string]interface{})
		}
		c.Extra[key] = value
	}
}

// DefaultConfig mirrors the teacher's conservative client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}
