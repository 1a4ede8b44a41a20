// Package learning implements the §4.9 feedback loop: rolling per-(task
// kind, adapter) aggregates built from execution outcomes, a routing
// suggestion derived from those aggregates, and snapshot persistence so the
// aggregate table survives a restart. The accumulator shape follows the
// teacher's orchestration.WorkflowMetrics (a mutex-protected map of
// per-key counters with a point-in-time snapshot method).
package learning

import (
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/eventbus"
	"github.com/gomind-ai/orchestrator/task"
)

// RollingStat is the per-(kind, adapter) aggregate from §4.9: count,
// success rate, mean execution time, mean satisfaction. Satisfaction is
// tracked as a sum/count pair rather than a running mean so Restore
// reconstructs an exact mean rather than an approximation.
type RollingStat struct {
	Count            int64   `yaml:"count"`
	SuccessCount     int64   `yaml:"success_count"`
	TotalExecutionMS int64   `yaml:"total_execution_ms"`
	SatisfactionSum  float64 `yaml:"satisfaction_sum"`
	SatisfactionN    int64   `yaml:"satisfaction_n"`
}

// SuccessRate is successCount/count, or 0 for an untouched stat.
func (s RollingStat) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.Count)
}

// MeanExecutionMS is totalExecutionMs/count, or 0 for an untouched stat.
func (s RollingStat) MeanExecutionMS() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.TotalExecutionMS) / float64(s.Count)
}

// MeanSatisfaction is satisfactionSum/satisfactionN, or 0 if no satisfaction
// score was ever recorded for this pair.
func (s RollingStat) MeanSatisfaction() float64 {
	if s.SatisfactionN == 0 {
		return 0
	}
	return s.SatisfactionSum / float64(s.SatisfactionN)
}

// statKey identifies one (kind, adapter) aggregate bucket.
type statKey struct {
	kind    task.Kind
	adapter adapter.ID
}

// Tracker accumulates RollingStat per (kind, adapter), emits
// insights:performance every N records, and answers routing suggestions per
// the §4.9 precedence: strong hint, then best success rate, then a static
// default.
type Tracker struct {
	mu      sync.RWMutex
	stats   map[statKey]*RollingStat
	hints   map[task.Kind]adapter.ID // strong hints, e.g. operator-pinned preference
	fallback adapter.ID
	n       int
	every   int
	bus     *eventbus.Bus
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithEventBus sets the bus insights:performance is published on.
func WithEventBus(b *eventbus.Bus) Option {
	return func(t *Tracker) { t.bus = b }
}

// WithEmitEvery overrides the default emit-every-10-records cadence.
func WithEmitEvery(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.every = n
		}
	}
}

// WithDefaultAdapter sets the static fallback Suggest returns when no stat
// or hint exists for a kind.
func WithDefaultAdapter(id adapter.ID) Option {
	return func(t *Tracker) { t.fallback = id }
}

// New builds an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		stats: make(map[statKey]*RollingStat),
		hints: make(map[task.Kind]adapter.ID),
		every: 10,
		bus:   eventbus.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetHint pins a strong routing preference for kind, overriding the
// success-rate comparison in Suggest. Passing "" clears the hint.
func (t *Tracker) SetHint(kind task.Kind, id adapter.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		delete(t.hints, kind)
		return
	}
	t.hints[kind] = id
}

// RecordOutcome ingests one feedback record (§4.9): task kind, chosen
// adapter, success boolean, execution time, and quality score standing in
// for the optional satisfaction rating (already normalised to [0,1] by
// task.Result.QualityScore, rescaled here to the spec's [1..5] range so
// MeanSatisfaction reads the way the spec describes it). Every `every`
// records across all keys, insights:performance is published with the
// current snapshot.
func (t *Tracker) RecordOutcome(kind task.Kind, adapterID adapter.ID, success bool, executionTimeMS int64, qualityScore float64) {
	t.mu.Lock()
	key := statKey{kind: kind, adapter: adapterID}
	s, ok := t.stats[key]
	if !ok {
		s = &RollingStat{}
		t.stats[key] = s
	}
	s.Count++
	if success {
		s.SuccessCount++
	}
	s.TotalExecutionMS += executionTimeMS
	if qualityScore > 0 {
		s.SatisfactionSum += 1 + qualityScore*4 // [0,1] -> [1,5]
		s.SatisfactionN++
	}
	t.n++
	emit := t.every > 0 && t.n%t.every == 0
	var snapshot map[string]RollingStat
	if emit {
		snapshot = t.snapshotLocked()
	}
	t.mu.Unlock()

	if emit && t.bus != nil {
		t.bus.Publish("insights:performance", snapshot)
	}
}

// Suggest returns the preferred adapter for kind per §4.9's precedence: a
// strong hint if one is set, else the adapter with the highest recorded
// success rate for kind, else the static default. The bool return is false
// only when no hint, no stat, and no default apply.
func (t *Tracker) Suggest(kind task.Kind) (adapter.ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if hint, ok := t.hints[kind]; ok {
		return hint, true
	}

	var best adapter.ID
	bestRate := -1.0
	for key, s := range t.stats {
		if key.kind != kind || s.Count == 0 {
			continue
		}
		rate := s.SuccessRate()
		if rate > bestRate || (rate == bestRate && key.adapter < best) {
			bestRate = rate
			best = key.adapter
		}
	}
	if bestRate >= 0 {
		return best, true
	}

	if t.fallback != "" {
		return t.fallback, true
	}
	return "", false
}

// Stat returns the current aggregate for (kind, adapter), or the zero value
// if nothing has been recorded for that pair yet.
func (t *Tracker) Stat(kind task.Kind, adapterID adapter.ID) RollingStat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.stats[statKey{kind: kind, adapter: adapterID}]; ok {
		return *s
	}
	return RollingStat{}
}

func (t *Tracker) snapshotLocked() map[string]RollingStat {
	out := make(map[string]RollingStat, len(t.stats))
	for key, s := range t.stats {
		out[string(key.kind)+"/"+string(key.adapter)] = *s
	}
	return out
}

// snapshotEntry is the yaml-serialised shape of one aggregate bucket,
// carrying the (kind, adapter) key explicitly since yaml map keys can't be
// a struct.
type snapshotEntry struct {
	Kind    task.Kind  `yaml:"kind"`
	Adapter adapter.ID `yaml:"adapter"`
	Stat    RollingStat `yaml:"stat"`
}

// snapshotDoc is the top-level Snapshot/Restore document.
type snapshotDoc struct {
	Entries []snapshotEntry `yaml:"entries"`
}

// Snapshot serialises the current aggregate table to YAML, satisfying
// §4.9's "aggregates may be persisted and reloaded between runs".
func (t *Tracker) Snapshot() ([]byte, error) {
	t.mu.RLock()
	doc := snapshotDoc{Entries: make([]snapshotEntry, 0, len(t.stats))}
	for key, s := range t.stats {
		doc.Entries = append(doc.Entries, snapshotEntry{Kind: key.kind, Adapter: key.adapter, Stat: *s})
	}
	t.mu.RUnlock()
	return yaml.Marshal(doc)
}

// Restore replaces the aggregate table with one previously produced by
// Snapshot. Existing hints and the default adapter are left untouched.
func (t *Tracker) Restore(data []byte) error {
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	stats := make(map[statKey]*RollingStat, len(doc.Entries))
	for _, e := range doc.Entries {
		stat := e.Stat
		stats[statKey{kind: e.Kind, adapter: e.Adapter}] = &stat
	}
	t.mu.Lock()
	t.stats = stats
	t.mu.Unlock()
	return nil
}
