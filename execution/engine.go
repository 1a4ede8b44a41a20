// Package execution implements the single-adapter execution engine (§4.3):
// select an adapter, invoke it under retry and circuit-breaker protection,
// wrap the outcome as a Result, drive the task state machine, and emit
// lifecycle events. This is the one place adapter.Invoke is actually called
// from the task pipeline; collaboration.Engine fans out to several of these.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/eventbus"
	"github.com/gomind-ai/orchestrator/resilience"
	"github.com/gomind-ai/orchestrator/router"
	"github.com/gomind-ai/orchestrator/task"
	"github.com/gomind-ai/orchestrator/validator"
)

// LearningRecorder is the narrow slice of learning.Tracker the engine needs,
// kept local so execution doesn't import learning directly and the two
// packages can evolve independently.
type LearningRecorder interface {
	RecordOutcome(kind task.Kind, adapterID adapter.ID, success bool, executionTimeMS int64, qualityScore float64)
}

const (
	eventTaskStarted   = "task:started"
	eventTaskCompleted = "task:completed"
	eventTaskFailed    = "task:failed"
	eventTaskValidated = "task:validated"
)

// Engine executes one Task against one Adapter.
type Engine struct {
	registry  *adapter.Registry
	router    *router.Router
	breakers  *resilience.Manager
	retryCfg  resilience.RetryConfig
	bus       *eventbus.Bus
	logger    core.Logger
	telemetry core.Telemetry
	learning  LearningRecorder
	criteria  []validator.Criterion
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithEventBus(b *eventbus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithLogger(l core.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithTelemetry(t core.Telemetry) Option {
	return func(e *Engine) { e.telemetry = t }
}

func WithCircuitBreakerManager(m *resilience.Manager) Option {
	return func(e *Engine) { e.breakers = m }
}

func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retryCfg = cfg }
}

func WithLearningRecorder(r LearningRecorder) Option {
	return func(e *Engine) { e.learning = r }
}

func WithValidationCriteria(c []validator.Criterion) Option {
	return func(e *Engine) { e.criteria = c }
}

// New builds an Engine backed by reg (adapter lookup) and rt (adapter
// selection).
func New(reg *adapter.Registry, rt *router.Router, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		router:    rt,
		breakers:  resilience.NewManager(resilience.DefaultCircuitBreakerConfig(), nil),
		retryCfg:  resilience.DefaultRetryConfig(),
		bus:       eventbus.New(),
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		criteria:  validator.DefaultCriteria(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteOptions controls one Execute call, matching §4.3's
// execute(task, {force_adapter?, timeout?, retry?, validate?}) contract.
type ExecuteOptions struct {
	// ForceAdapter bypasses routing and pins the call to a specific adapter,
	// mirroring the task's own constraints.preferred_adapter but settable
	// per-call (e.g. by the collaboration engine fanning out to N adapters).
	ForceAdapter adapter.ID
	// Validate runs the validator after a successful invocation and, if the
	// result passes, transitions the task Completed -> Validated.
	Validate bool
	// Timeout overrides the task's own constraints.timeout_ms for this call
	// only, zero means defer to the task's constraint (and, when that is
	// zero too, to a 30s default).
	Timeout time.Duration
	// Retry overrides the engine's retry config for this call only; a nil
	// pointer defers to the task's constraints.max_retries (and the
	// engine's default beyond that). A non-nil Retry with MaxAttempts == 1
	// disables retry entirely for this call.
	Retry *resilience.RetryConfig
}

// Execute runs the §4.3 procedure: transition Pending -> InProgress, select
// an adapter, invoke it under retry/circuit-breaker/timeout protection,
// transition to Completed/Failed, optionally validate, and record learning
// feedback. The returned error is only non-nil for engine-level failures
// (no transition possible, no adapter available); adapter invocation
// failures are reported as a failed Result with a nil error.
func (e *Engine) Execute(ctx context.Context, t *task.Task, opts ExecuteOptions) (*task.Result, error) {
	ctx, span := e.telemetry.StartSpan(ctx, "execution.execute")
	defer span.End()
	span.SetAttribute("task.kind", string(t.Kind))

	if err := t.Transition(task.StatusInProgress); err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.bus.Publish(eventTaskStarted, t)

	adapterID, err := e.selectAdapter(t, opts)
	if err != nil {
		span.RecordError(err)
		e.failTask(t, err.Error(), 0, 0)
		return nil, err
	}
	span.SetAttribute("adapter.id", string(adapterID))

	a, err := e.registry.MustGet(adapterID)
	if err != nil {
		span.RecordError(err)
		e.failTask(t, err.Error(), 0, 0)
		return nil, err
	}

	result := e.invoke(ctx, a, t, opts)
	span.SetAttribute("attempt", result.Metadata.RetryCount+1)

	if result.Success() {
		_ = t.Transition(task.StatusCompleted)
		e.bus.Publish(eventTaskCompleted, result)
	} else {
		_ = t.Transition(task.StatusFailed)
		e.bus.Publish(eventTaskFailed, result)
		span.RecordError(core.NewFrameworkError("execution.Execute", "adapter_error", core.ErrRequestFailed).WithID(string(adapterID)))
	}

	if opts.Validate && result.Success() {
		outcome := validator.Validate(result, t, e.criteria, e.router)
		result.Metadata.ValidatedBy = "execution"
		result.Metadata.ValidationScore = outcome.Score
		result.Metadata.ValidationRecommendations = outcome.Recommendations
		if outcome.IsValid {
			if err := t.Transition(task.StatusValidated); err == nil {
				e.bus.Publish(eventTaskValidated, result)
			}
		}
	}

	if e.learning != nil {
		e.learning.RecordOutcome(t.Kind, adapterID, result.Success(), result.Metadata.ExecutionTimeMS, result.QualityScore())
	}

	return result, nil
}

func (e *Engine) selectAdapter(t *task.Task, opts ExecuteOptions) (adapter.ID, error) {
	if opts.ForceAdapter != "" {
		return opts.ForceAdapter, nil
	}
	decision := e.router.Route(t)
	if decision.AdapterID == "" {
		return "", core.NewFrameworkError("execution.Execute", "routing", core.ErrNoAdapterAvailable).WithID(string(t.Kind))
	}
	return decision.AdapterID, nil
}

// invoke runs a under retry + circuit-breaker + per-task-timeout protection,
// returning a Result that never carries an engine-level error — adapter
// failures are captured in Result.Error instead. opts.Timeout/opts.Retry
// take precedence over the task's own constraints for this one call.
func (e *Engine) invoke(ctx context.Context, a adapter.Adapter, t *task.Task, opts ExecuteOptions) *task.Result {
	cb := e.breakers.Get("task:" + string(t.Kind))
	timeout := time.Duration(t.Metadata.Constraints.TimeoutMS) * time.Millisecond
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retryCfg := e.retryCfg
	if t.Metadata.Constraints.MaxRetries > 0 {
		retryCfg.MaxAttempts = t.Metadata.Constraints.MaxRetries
	}
	if opts.Retry != nil {
		retryCfg = *opts.Retry
	}
	// Adapter invocation failures are retried by default; an open circuit,
	// a timed-out attempt, and configuration/not-found/state errors are not.
	retryCfg.Classifier = func(err error) bool {
		if errors.Is(err, core.ErrCircuitOpen) || errors.Is(err, core.ErrTimeout) {
			return false
		}
		return !core.IsConfigurationError(err) && !core.IsNotFound(err) && !core.IsStateError(err)
	}

	start := time.Now()
	attempts := 0
	var lastResult *adapter.InvokeResult
	var lastErr error

	retryErr := resilience.Retry(ctx, retryCfg, func() error {
		attempts++
		err := cb.ExecuteWithTimeout(ctx, timeout, func() error {
			out, invokeErr := a.Invoke(ctx, t)
			lastResult, lastErr = out, invokeErr
			return invokeErr
		})
		return err
	})

	elapsed := time.Since(start).Milliseconds()
	retryCount := attempts - 1
	if retryCount < 0 {
		retryCount = 0
	}

	if retryErr != nil {
		msg := retryErr.Error()
		if lastErr != nil {
			msg = lastErr.Error()
		}
		return task.NewFailure(t.ID, string(a.ID()), msg, task.ResultMetadata{
			ExecutionTimeMS: elapsed,
			RetryCount:      retryCount,
		})
	}

	meta := task.ResultMetadata{
		ExecutionTimeMS: elapsed,
		RetryCount:      retryCount,
	}
	if lastResult != nil {
		meta.TokensUsed = lastResult.TokensUsed
		meta.Model = lastResult.Model
	}
	return task.NewSuccess(t.ID, string(a.ID()), outputOf(lastResult), meta)
}

func outputOf(r *adapter.InvokeResult) string {
	if r == nil {
		return ""
	}
	return r.Output
}

// failTask best-effort transitions t to Failed when execution could not
// even select/locate an adapter; it swallows the transition error since the
// caller already has the original failure to report.
func (e *Engine) failTask(t *task.Task, reason string, retries int, elapsedMS int64) {
	result := task.NewFailure(t.ID, "", reason, task.ResultMetadata{ExecutionTimeMS: elapsedMS, RetryCount: retries})
	_ = t.Transition(task.StatusFailed)
	e.bus.Publish(eventTaskFailed, result)
}
