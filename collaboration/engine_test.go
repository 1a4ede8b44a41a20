package collaboration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/execution"
	"github.com/gomind-ai/orchestrator/resilience"
	"github.com/gomind-ai/orchestrator/router"
	"github.com/gomind-ai/orchestrator/task"
)

type registryCapabilities struct {
	reg *adapter.Registry
}

func (c *registryCapabilities) CanExecute(id adapter.ID, kind task.Kind) bool {
	a, ok := c.reg.Get(id)
	return ok && a.Supports(kind)
}

func (c *registryCapabilities) CandidateIDs() []adapter.ID { return c.reg.IDs() }

func (c *registryCapabilities) Capabilities(id adapter.ID) []string {
	a, ok := c.reg.Get(id)
	if !ok {
		return nil
	}
	return a.Capabilities()
}

type echoAdapter struct {
	id     adapter.ID
	prefix string
	cfg    adapter.Config
}

func newEchoAdapter(id adapter.ID, prefix string) *echoAdapter {
	return &echoAdapter{id: id, prefix: prefix, cfg: adapter.DefaultConfig()}
}

func (a *echoAdapter) ID() adapter.ID { return a.id }

func (a *echoAdapter) Invoke(ctx context.Context, t *task.Task) (*adapter.InvokeResult, error) {
	return &adapter.InvokeResult{Output: fmt.Sprintf("%s: %s", a.prefix, t.Prompt)}, nil
}

func (a *echoAdapter) Capabilities() []string { return []string{"any"} }

func (a *echoAdapter) Supports(kind task.Kind) bool { return true }

func (a *echoAdapter) Health(ctx context.Context) adapter.Health {
	return adapter.Health{Status: adapter.HealthHealthy, LastCheck: time.Now()}
}

func (a *echoAdapter) Configure(opts ...adapter.Option) error {
	for _, opt := range opts {
		opt(&a.cfg)
	}
	return nil
}

func (a *echoAdapter) Configuration() adapter.Config { return a.cfg }

func newTestEngine(t *testing.T, adapters ...*echoAdapter) *Engine {
	reg := adapter.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	rt := router.New(&registryCapabilities{reg: reg})
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialInterval = time.Millisecond
	exec := execution.New(reg, rt, execution.WithRetryConfig(cfg))
	return New(exec)
}

func mustTask(t *testing.T, kind task.Kind) *task.Task {
	tk, err := task.New(kind, "summarize the quarterly report", task.PriorityMedium)
	require.NoError(t, err)
	return tk
}

func TestRun_RejectsFewerThanTwoAdapters(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "one"))
	_, err := e.Run(context.Background(), mustTask(t, task.KindSearch), ModeSequential, []adapter.ID{"a1"}, Options{})
	require.Error(t, err)
}

func TestRun_Sequential_FeedsPreviousOutputForward(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "one"), newEchoAdapter("a2", "two"))
	tk := mustTask(t, task.KindSearch)

	result, err := e.Run(context.Background(), tk, ModeSequential, []adapter.ID{"a1", "a2"}, Options{})
	require.NoError(t, err)
	assert.Len(t, result.StepResults, 2)
	assert.Contains(t, result.Output, "two:")
	assert.Contains(t, result.StepResults[1].Output, "Based on the previous analysis")
}

func TestRun_Parallel_MergesAllSuccesses(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "one"), newEchoAdapter("a2", "two"))
	tk := mustTask(t, task.KindSearch)

	result, err := e.Run(context.Background(), tk, ModeParallel, []adapter.ID{"a1", "a2"}, Options{})
	require.NoError(t, err)
	assert.Len(t, result.StepResults, 2)
	require.NotNil(t, result.Merged)
}

func TestRun_Review_RequiresExactlyTwo(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "one"), newEchoAdapter("a2", "two"), newEchoAdapter("a3", "three"))
	tk := mustTask(t, task.KindSearch)

	_, err := e.Run(context.Background(), tk, ModeReview, []adapter.ID{"a1", "a2", "a3"}, Options{})
	require.Error(t, err)
}

func TestRun_Review_FormatsPrimaryAndReview(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "primary"), newEchoAdapter("a2", "reviewer"))
	tk := mustTask(t, task.KindSearch)

	result, err := e.Run(context.Background(), tk, ModeReview, []adapter.ID{"a1", "a2"}, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Primary")
	assert.Contains(t, result.Output, "Review")
}

func TestRun_Iterative_DefaultsToThreeIterations(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "one"), newEchoAdapter("a2", "two"))
	tk := mustTask(t, task.KindSearch)

	result, err := e.Run(context.Background(), tk, ModeIterative, []adapter.ID{"a1", "a2"}, Options{})
	require.NoError(t, err)
	assert.Len(t, result.StepResults, 3)
}

func TestRun_Iterative_StopsOnConsensus(t *testing.T) {
	e := newTestEngine(t, newEchoAdapter("a1", "same"), newEchoAdapter("a2", "same"))
	tk := mustTask(t, task.KindSearch)

	result, err := e.Run(context.Background(), tk, ModeIterative, []adapter.ID{"a1", "a2"}, Options{
		MaxIterations: 5, StopOnConsensus: true,
	})
	require.NoError(t, err)
	assert.Less(t, len(result.StepResults), 5)
}
