// Package router chooses an adapter for a task from a priority-ordered
// chain of strategies, falling back to a deterministic capability scorer.
// Routing never performs I/O.
package router

import (
	"sort"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/task"
)

// Strategy is a router plug-in pairing a can-handle predicate with a
// select function.
type Strategy interface {
	Name() string
	Priority() int
	CanHandle(t *task.Task) bool
	Select(t *task.Task, candidates []adapter.ID) (adapter.ID, bool)
}

// Decision is the router's output: which adapter to use, how confident the
// router is, and why.
type Decision struct {
	AdapterID  adapter.ID
	Confidence float64
	Reason     string
}

// CapabilityProvider resolves which adapters can execute a kind and what
// capability tags each adapter declares, without the router importing the
// adapter.Registry concretely (keeps routing pure/testable).
type CapabilityProvider interface {
	CanExecute(id adapter.ID, kind task.Kind) bool
	CandidateIDs() []adapter.ID
	Capabilities(id adapter.ID) []string
}

// Router selects an adapter for a task (§4.2).
type Router struct {
	strategies       []Strategy
	capabilities     CapabilityProvider
	preferredByKind  map[task.Kind]adapter.ID // per-kind preferred-adapter hint, used by the scorer
}

// New creates a Router backed by capabilities.
func New(capabilities CapabilityProvider) *Router {
	return &Router{
		capabilities:    capabilities,
		preferredByKind: make(map[task.Kind]adapter.ID),
	}
}

// AddStrategy registers a strategy, keeping the chain sorted by descending
// Priority (stable, so equal-priority strategies keep insertion order).
func (r *Router) AddStrategy(s Strategy) {
	r.strategies = append(r.strategies, s)
	sort.SliceStable(r.strategies, func(i, j int) bool {
		return r.strategies[i].Priority() > r.strategies[j].Priority()
	})
}

// RemoveStrategy removes the first strategy with the given name.
func (r *Router) RemoveStrategy(name string) {
	for i, s := range r.strategies {
		if s.Name() == name {
			r.strategies = append(r.strategies[:i], r.strategies[i+1:]...)
			return
		}
	}
}

// SetPreferredAdapter sets the per-kind preferred-adapter hint used by the
// capability scorer's fallback stage.
func (r *Router) SetPreferredAdapter(kind task.Kind, id adapter.ID) {
	r.preferredByKind[kind] = id
}

// Suggest returns the per-kind preferred-adapter hint set via
// SetPreferredAdapter, satisfying validator.HintSource so the validator can
// flag a (task kind, adapter) mismatch in its recommendations.
func (r *Router) Suggest(kind task.Kind) (adapter.ID, bool) {
	id, ok := r.preferredByKind[kind]
	return id, ok
}

// Route implements the §4.2 algorithm:
//
//	(a) task.constraints.preferred_adapter if it can execute this kind -> confidence 1.0
//	(b) first strategy (descending priority) whose CanHandle+Select both succeed -> confidence 0.8
//	(c) capability scorer fallback
func (r *Router) Route(t *task.Task) Decision {
	if pref := adapter.ID(t.Metadata.Constraints.PreferredAdapter); pref != "" {
		if r.capabilities.CanExecute(pref, t.Kind) {
			return Decision{AdapterID: pref, Confidence: 1.0, Reason: "preferred adapter override"}
		}
	}

	candidates := r.capabilities.CandidateIDs()

	for _, s := range r.strategies {
		if !s.CanHandle(t) {
			continue
		}
		if id, ok := s.Select(t, candidates); ok {
			return Decision{AdapterID: id, Confidence: 0.8, Reason: "strategy:" + s.Name()}
		}
	}

	return r.scoreCandidates(t, candidates)
}

// scoreCandidates is the deterministic capability-scorer fallback (§4.2c):
// 0.5 (can execute kind) + 0.3 (declared capability matches kind tag) +
// 0.2 (per-kind preferred-adapter hint), ties broken by adapter-id order.
func (r *Router) scoreCandidates(t *task.Task, candidates []adapter.ID) Decision {
	sorted := make([]adapter.ID, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var best adapter.ID
	bestScore := -1.0

	for _, id := range sorted {
		if !r.capabilities.CanExecute(id, t.Kind) {
			continue
		}
		score := 0.5
		for _, cap := range r.capabilities.Capabilities(id) {
			if cap == string(t.Kind) {
				score += 0.3
				break
			}
		}
		if r.preferredByKind[t.Kind] == id {
			score += 0.2
		}
		if score > bestScore {
			bestScore = score
			best = id
		}
	}

	if bestScore < 0 {
		return Decision{Reason: "no adapter can execute this task kind"}
	}

	return Decision{AdapterID: best, Confidence: bestScore, Reason: "capability scorer"}
}
