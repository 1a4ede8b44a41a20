package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/task"
)

type fakeCapabilities struct {
	canExecute map[adapter.ID]map[task.Kind]bool
	caps       map[adapter.ID][]string
}

func (f *fakeCapabilities) CanExecute(id adapter.ID, kind task.Kind) bool {
	return f.canExecute[id][kind]
}

func (f *fakeCapabilities) CandidateIDs() []adapter.ID {
	ids := make([]adapter.ID, 0, len(f.canExecute))
	for id := range f.canExecute {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeCapabilities) Capabilities(id adapter.ID) []string {
	return f.caps[id]
}

func newFixture() *fakeCapabilities {
	return &fakeCapabilities{
		canExecute: map[adapter.ID]map[task.Kind]bool{
			"adapterA": {task.KindRefactoring: true, task.KindCodeGeneration: true},
			"adapterB": {task.KindRefactoring: true},
		},
		caps: map[adapter.ID][]string{
			"adapterA": {string(task.KindCodeGeneration)},
			"adapterB": {string(task.KindRefactoring)},
		},
	}
}

func mustTask(t *testing.T, kind task.Kind, prompt string, pr task.Priority) *task.Task {
	tk, err := task.New(kind, prompt, pr)
	require.NoError(t, err)
	return tk
}

func TestRoute_PreferredAdapterOverride(t *testing.T) {
	caps := newFixture()
	r := New(caps)

	tk := mustTask(t, task.KindRefactoring, "rename X to Y", task.PriorityHigh)
	tk.Metadata.Constraints.PreferredAdapter = "adapterA"

	d := r.Route(tk)
	assert.Equal(t, adapter.ID("adapterA"), d.AdapterID)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestRoute_RuleBasedStrategyWins(t *testing.T) {
	caps := newFixture()
	r := New(caps)
	r.AddStrategy(NewRuleBasedStrategy(map[task.Kind]adapter.ID{
		task.KindRefactoring: "adapterB",
	}))

	tk := mustTask(t, task.KindRefactoring, "rename X to Y", task.PriorityLow)
	d := r.Route(tk)
	assert.Equal(t, adapter.ID("adapterB"), d.AdapterID)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, "strategy:rule_based", d.Reason)
}

func TestRoute_FallsThroughToCapabilityScorer(t *testing.T) {
	caps := newFixture()
	r := New(caps)

	tk := mustTask(t, task.KindRefactoring, "rename X to Y", task.PriorityLow)
	d := r.Route(tk)
	// adapterB declares the refactoring capability tag -> 0.5 + 0.3 = 0.8
	assert.Equal(t, adapter.ID("adapterB"), d.AdapterID)
	assert.InDelta(t, 0.8, d.Confidence, 0.001)
}

func TestRoute_Deterministic(t *testing.T) {
	caps := newFixture()
	r := New(caps)
	tk := mustTask(t, task.KindRefactoring, "rename X to Y", task.PriorityLow)

	d1 := r.Route(tk)
	d2 := r.Route(tk)
	assert.Equal(t, d1, d2)
}

func TestRoute_ComplexityStrategy(t *testing.T) {
	caps := newFixture()
	r := New(caps)
	r.AddStrategy(NewComplexityStrategy(10, "adapterA"))

	tk := mustTask(t, task.KindCodeGeneration, strings.Repeat("x", 50), task.PriorityLow)
	d := r.Route(tk)
	assert.Equal(t, adapter.ID("adapterA"), d.AdapterID)
}

func TestRoute_NoCandidate(t *testing.T) {
	caps := &fakeCapabilities{canExecute: map[adapter.ID]map[task.Kind]bool{}}
	r := New(caps)
	tk := mustTask(t, task.KindSearch, "find something", task.PriorityLow)

	d := r.Route(tk)
	assert.Equal(t, adapter.ID(""), d.AdapterID)
}

func TestAddRemoveStrategy(t *testing.T) {
	caps := newFixture()
	r := New(caps)
	s := NewRuleBasedStrategy(map[task.Kind]adapter.ID{task.KindRefactoring: "adapterB"})
	r.AddStrategy(s)
	require.Len(t, r.strategies, 1)

	r.RemoveStrategy("rule_based")
	assert.Len(t, r.strategies, 0)
}
