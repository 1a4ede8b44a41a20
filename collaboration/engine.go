// Package collaboration implements the §4.4 multi-adapter flows
// (sequential, parallel, review, iterative), each built from independent
// execution.Engine.Execute calls against per-step clones of the original
// task, then optionally folded together by merger.Merge.
package collaboration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/eventbus"
	"github.com/gomind-ai/orchestrator/execution"
	"github.com/gomind-ai/orchestrator/merger"
	"github.com/gomind-ai/orchestrator/task"
)

// Mode is one of the four collaboration flows.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeReview     Mode = "review"
	ModeIterative  Mode = "iterative"
)

const defaultMaxIterations = 3

const (
	eventCollaborationStarted   = "collaboration:started"
	eventCollaborationCompleted = "collaboration:completed"
)

// Options configures one Run call.
type Options struct {
	MaxIterations    int // iterative mode only; defaults to 3
	StopOnConsensus  bool
	MergeStrategy    merger.Strategy // parallel/combine default; ignored by review (always validate)
	PreferredAdapter string
}

// Result is the outcome of a collaboration run: the final formatted output
// plus every per-step Result that produced it, so callers can audit which
// adapter contributed what.
type Result struct {
	Output      string
	Mode        Mode
	StepResults []*task.Result
	Merged      *merger.Merged
	Confidence  float64
}

// Engine runs multi-adapter collaboration flows on top of a single
// execution.Engine.
type Engine struct {
	exec   *execution.Engine
	bus    *eventbus.Bus
	logger core.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithEventBus(b *eventbus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithLogger(l core.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an Engine that executes steps through exec.
func New(exec *execution.Engine, opts ...Option) *Engine {
	e := &Engine{exec: exec, bus: eventbus.New(), logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes t under mode across adapterIDs. All modes require at least
// two adapters; review requires exactly two.
func (e *Engine) Run(ctx context.Context, t *task.Task, mode Mode, adapterIDs []adapter.ID, opts Options) (*Result, error) {
	if len(adapterIDs) < 2 {
		return nil, core.NewFrameworkError("collaboration.Run", "validation", core.ErrInvalidConfiguration).WithID(t.ID)
	}
	if mode == ModeReview && len(adapterIDs) != 2 {
		return nil, core.NewFrameworkError("collaboration.Run", "validation", core.ErrInvalidConfiguration).WithID(t.ID)
	}

	e.bus.Publish(eventCollaborationStarted, map[string]interface{}{"task_id": t.ID, "mode": string(mode)})

	var result *Result
	var err error

	switch mode {
	case ModeSequential:
		result, err = e.runSequential(ctx, t, adapterIDs)
	case ModeParallel:
		result, err = e.runParallel(ctx, t, adapterIDs, opts)
	case ModeReview:
		result, err = e.runReview(ctx, t, adapterIDs)
	case ModeIterative:
		result, err = e.runIterative(ctx, t, adapterIDs, opts)
	default:
		return nil, core.NewFrameworkError("collaboration.Run", "validation", core.ErrInvalidConfiguration).WithID(string(mode))
	}

	if err != nil {
		return nil, err
	}

	e.bus.Publish(eventCollaborationCompleted, map[string]interface{}{"task_id": t.ID, "mode": string(mode)})
	return result, nil
}

func cloneTask(t *task.Task, prompt string) (*task.Task, error) {
	return task.New(t.Kind, prompt, t.Priority,
		task.WithConstraints(t.Metadata.Constraints),
		task.WithTags(t.Metadata.Tags...),
		task.WithOwner(t.OwnerID),
		task.WithTemplate(t.TemplateID),
	)
}

// --- sequential -----------------------------------------------------------

func (e *Engine) runSequential(ctx context.Context, t *task.Task, adapterIDs []adapter.ID) (*Result, error) {
	var steps []*task.Result
	previous := ""

	for i, id := range adapterIDs {
		prompt := t.Prompt
		if i > 0 {
			prompt = fmt.Sprintf("Based on the previous analysis:\n%s\n\nPlease continue with step %d:\n%s", previous, i+1, t.Prompt)
		}
		step, err := cloneTask(t, prompt)
		if err != nil {
			return nil, err
		}
		stepResult, err := e.exec.Execute(ctx, step, execution.ExecuteOptions{ForceAdapter: id})
		if err != nil {
			return nil, err
		}
		steps = append(steps, stepResult)
		previous = stepResult.Output
	}

	last := steps[len(steps)-1]
	return &Result{
		Output:      last.Output,
		Mode:        ModeSequential,
		StepResults: steps,
		Confidence:  last.QualityScore(),
	}, nil
}

// --- parallel ---------------------------------------------------------

func (e *Engine) runParallel(ctx context.Context, t *task.Task, adapterIDs []adapter.ID, opts Options) (*Result, error) {
	steps := make([]*task.Result, len(adapterIDs))
	var wg sync.WaitGroup

	for i, id := range adapterIDs {
		wg.Add(1)
		go func(i int, id adapter.ID) {
			defer wg.Done()
			step, err := cloneTask(t, t.Prompt)
			if err != nil {
				steps[i] = task.NewFailure(t.ID, string(id), err.Error(), task.ResultMetadata{})
				return
			}
			stepResult, err := e.exec.Execute(ctx, step, execution.ExecuteOptions{ForceAdapter: id})
			if err != nil {
				steps[i] = task.NewFailure(t.ID, string(id), err.Error(), task.ResultMetadata{})
				return
			}
			steps[i] = stepResult
		}(i, id)
	}
	wg.Wait()

	strategy := opts.MergeStrategy
	if strategy == "" {
		strategy = merger.StrategyCombine
	}
	merged, err := merger.Merge(steps, t, merger.Options{Strategy: strategy, PreferredAdapter: opts.PreferredAdapter})
	if err != nil {
		return nil, err
	}

	return &Result{
		Output:      merged.Output,
		Mode:        ModeParallel,
		StepResults: steps,
		Merged:      merged,
		Confidence:  merged.Confidence,
	}, nil
}

// --- review -------------------------------------------------------------

func (e *Engine) runReview(ctx context.Context, t *task.Task, adapterIDs []adapter.ID) (*Result, error) {
	primaryStep, err := cloneTask(t, t.Prompt)
	if err != nil {
		return nil, err
	}
	primaryResult, err := e.exec.Execute(ctx, primaryStep, execution.ExecuteOptions{ForceAdapter: adapterIDs[0]})
	if err != nil {
		return nil, err
	}

	reviewPrompt := fmt.Sprintf("please review: %s\n\n%s", t.Prompt, primaryResult.Output)
	reviewStep, err := task.New(task.KindValidation, reviewPrompt, t.Priority,
		task.WithConstraints(t.Metadata.Constraints))
	if err != nil {
		return nil, err
	}
	reviewResult, err := e.exec.Execute(ctx, reviewStep, execution.ExecuteOptions{ForceAdapter: adapterIDs[1]})
	if err != nil {
		return nil, err
	}

	steps := []*task.Result{primaryResult, reviewResult}
	merged, err := merger.Merge(steps, t, merger.Options{Strategy: merger.StrategyValidate})
	if err != nil {
		return nil, err
	}

	return &Result{
		Output:      merged.Output,
		Mode:        ModeReview,
		StepResults: steps,
		Merged:      merged,
		Confidence:  merged.Confidence,
	}, nil
}

// --- iterative ------------------------------------------------------------

func (e *Engine) runIterative(ctx context.Context, t *task.Task, adapterIDs []adapter.ID, opts Options) (*Result, error) {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	var steps []*task.Result
	var outputs []string
	previous := ""

	for i := 0; i < maxIterations; i++ {
		id := adapterIDs[i%len(adapterIDs)]
		prompt := t.Prompt
		if i > 0 {
			prompt = fmt.Sprintf("Based on the previous iteration:\n%s\n\nRefine your response to:\n%s", previous, t.Prompt)
		}
		step, err := cloneTask(t, prompt)
		if err != nil {
			return nil, err
		}
		stepResult, err := e.exec.Execute(ctx, step, execution.ExecuteOptions{ForceAdapter: id})
		if err != nil {
			return nil, err
		}
		steps = append(steps, stepResult)
		outputs = append(outputs, stepResult.Output)
		previous = stepResult.Output

		if opts.StopOnConsensus && i >= 1 {
			if overlapSimilarity(outputs[i-1], outputs[i]) >= 0.9 {
				break
			}
		}
	}

	last := steps[len(steps)-1]
	return &Result{
		Output:      last.Output,
		Mode:        ModeIterative,
		StepResults: steps,
		Confidence:  last.QualityScore(),
	}, nil
}

// overlapSimilarity is |intersection| / min(|a|,|b|) over lowercased word
// sets, per §4.4's consensus-stop rule (distinct from the Jaccard overlap
// used elsewhere in this tree).
func overlapSimilarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	minSize := len(wa)
	if len(wb) < minSize {
		minSize = len(wb)
	}
	return float64(intersection) / float64(minSize)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}
