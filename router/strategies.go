package router

import (
	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/task"
)

// RuleBasedStrategy routes by a static table of task kind -> adapter id.
// It is the highest-priority default strategy.
type RuleBasedStrategy struct {
	table map[task.Kind]adapter.ID
}

// NewRuleBasedStrategy builds a RuleBasedStrategy from table.
func NewRuleBasedStrategy(table map[task.Kind]adapter.ID) *RuleBasedStrategy {
	return &RuleBasedStrategy{table: table}
}

func (s *RuleBasedStrategy) Name() string  { return "rule_based" }
func (s *RuleBasedStrategy) Priority() int { return 100 }

func (s *RuleBasedStrategy) CanHandle(t *task.Task) bool {
	_, ok := s.table[t.Kind]
	return ok
}

func (s *RuleBasedStrategy) Select(t *task.Task, candidates []adapter.ID) (adapter.ID, bool) {
	id, ok := s.table[t.Kind]
	if !ok {
		return "", false
	}
	for _, c := range candidates {
		if c == id {
			return id, true
		}
	}
	return "", false
}

// ComplexityStrategy prefers the configured stronger-reasoning adapter for
// long prompts.
type ComplexityStrategy struct {
	PromptLengthThreshold int
	StrongReasoningAdapter adapter.ID
}

// NewComplexityStrategy builds a ComplexityStrategy with the given
// threshold (in prompt characters) and preferred adapter.
func NewComplexityStrategy(threshold int, strongAdapter adapter.ID) *ComplexityStrategy {
	return &ComplexityStrategy{PromptLengthThreshold: threshold, StrongReasoningAdapter: strongAdapter}
}

func (s *ComplexityStrategy) Name() string  { return "complexity" }
func (s *ComplexityStrategy) Priority() int { return 50 }

func (s *ComplexityStrategy) CanHandle(t *task.Task) bool {
	return len(t.Prompt) >= s.PromptLengthThreshold
}

func (s *ComplexityStrategy) Select(t *task.Task, candidates []adapter.ID) (adapter.ID, bool) {
	for _, c := range candidates {
		if c == s.StrongReasoningAdapter {
			return c, true
		}
	}
	return "", false
}

// PerformanceStrategy prefers the configured faster adapter when priority
// is high or urgent.
type PerformanceStrategy struct {
	FastAdapter adapter.ID
}

// NewPerformanceStrategy builds a PerformanceStrategy preferring fastAdapter.
func NewPerformanceStrategy(fastAdapter adapter.ID) *PerformanceStrategy {
	return &PerformanceStrategy{FastAdapter: fastAdapter}
}

func (s *PerformanceStrategy) Name() string  { return "performance" }
func (s *PerformanceStrategy) Priority() int { return 25 }

func (s *PerformanceStrategy) CanHandle(t *task.Task) bool {
	return t.Priority >= task.PriorityHigh
}

func (s *PerformanceStrategy) Select(t *task.Task, candidates []adapter.ID) (adapter.ID, bool) {
	for _, c := range candidates {
		if c == s.FastAdapter {
			return c, true
		}
	}
	return "", false
}
