// Package validator implements weighted-criteria scoring of a single
// Result (§4.5) and pairwise cross-validation between two Results. Every
// function here is pure — no I/O, no adapter calls.
package validator

import (
	"fmt"
	"strings"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

const (
	passThreshold  = 0.7
	criterionPass  = 0.6
)

// Criterion scores one dimension of a Result in [0,1] with a weight used
// in the overall weighted average.
type Criterion struct {
	Name   string
	Weight float64
	Score  func(r *task.Result, t *task.Task) float64
}

// Outcome is the result of Validate.
type Outcome struct {
	IsValid         bool
	Score           float64
	CriterionScores map[string]float64
	Recommendations []string
}

// HintSource supplies the adapter currently preferred for a task kind, as
// tracked by the router's per-kind preference table or the learning
// feedback loop's rolling success rates (§4.9). router.Router and
// learning.Tracker both already expose this exact shape, so Validate takes
// the interface rather than either concrete package.
type HintSource interface {
	Suggest(kind task.Kind) (adapter.ID, bool)
}

// DefaultCriteria returns the §4.5 default weighted criteria: completeness
// (0.25), relevance (0.3), format (0.2), performance (0.15), error-free (0.1).
func DefaultCriteria() []Criterion {
	return []Criterion{
		{Name: "completeness", Weight: 0.25, Score: scoreCompleteness},
		{Name: "relevance", Weight: 0.3, Score: scoreRelevance},
		{Name: "format", Weight: 0.2, Score: scoreFormat},
		{Name: "performance", Weight: 0.15, Score: scorePerformance},
		{Name: "error_free", Weight: 0.1, Score: scoreErrorFree},
	}
}

// Validate scores r against t using criteria, returning the weighted
// average, isValid (score >= 0.7), and recommendations derived from
// failing criteria and from a (task kind, adapter) mismatch against hints
// (§4.5). hints may be nil, in which case the mismatch check is skipped.
func Validate(r *task.Result, t *task.Task, criteria []Criterion, hints HintSource) Outcome {
	var weightedSum, totalWeight float64
	scores := make(map[string]float64, len(criteria))
	var recommendations []string

	for _, c := range criteria {
		s := clamp01(c.Score(r, t))
		scores[c.Name] = s
		weightedSum += s * c.Weight
		totalWeight += c.Weight

		if s < criterionPass {
			recommendations = append(recommendations, fmt.Sprintf("%s scored %.2f, below the %.2f pass threshold", c.Name, s, criterionPass))
		}
	}

	if hints != nil {
		if preferred, ok := hints.Suggest(t.Kind); ok && string(preferred) != r.AdapterID {
			recommendations = append(recommendations, fmt.Sprintf("adapter %q is preferred for %s tasks; %q was used instead", preferred, t.Kind, r.AdapterID))
		}
	}

	overall := 0.0
	if totalWeight > 0 {
		overall = weightedSum / totalWeight
	}

	return Outcome{
		IsValid:         overall >= passThreshold,
		Score:           clamp01(overall),
		CriterionScores: scores,
		Recommendations: recommendations,
	}
}

func scoreCompleteness(r *task.Result, t *task.Task) float64 {
	if !r.Success() {
		return 0
	}
	promptLen := len(t.Prompt)
	outLen := len(r.Output)
	switch {
	case outLen == 0:
		return 0
	case outLen < promptLen/4:
		return 0.3
	case outLen < promptLen:
		return 0.7
	default:
		return 1.0
	}
}

func scoreRelevance(r *task.Result, t *task.Task) float64 {
	if !r.Success() {
		return 0
	}
	promptWords := significantWords(t.Prompt)
	if len(promptWords) == 0 {
		return 1.0
	}
	outputLower := strings.ToLower(r.Output)
	matched := 0
	for w := range promptWords {
		if strings.Contains(outputLower, w) {
			matched++
		}
	}
	return clamp01(float64(matched) / float64(len(promptWords)))
}

func scoreFormat(r *task.Result, t *task.Task) float64 {
	if !r.Success() {
		return 0
	}
	if !isCodeKind(t.Kind) {
		return 1.0
	}
	if strings.Contains(r.Output, "```") {
		return 1.0
	}
	// Consistent indentation (every non-empty line starts with whitespace
	// or the block is a single line) is accepted as a fallback signal.
	lines := strings.Split(r.Output, "\n")
	indented := 0
	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		nonEmpty++
		if strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t") {
			indented++
		}
	}
	if nonEmpty <= 1 {
		return 1.0
	}
	return clamp01(float64(indented) / float64(nonEmpty))
}

func scorePerformance(r *task.Result, t *task.Task) float64 {
	ms := r.Metadata.ExecutionTimeMS
	switch {
	case ms <= 0:
		return 1.0
	case ms < 2000:
		return 1.0
	case ms < 5000:
		return 0.8
	case ms < 10000:
		return 0.6
	case ms < 20000:
		return 0.3
	default:
		return 0.1
	}
}

func scoreErrorFree(r *task.Result, t *task.Task) float64 {
	if r.Success() {
		return 1.0
	}
	return 0.0
}

func isCodeKind(k task.Kind) bool {
	switch k {
	case task.KindCodeGeneration, task.KindCodeReview, task.KindDebugging, task.KindRefactoring, task.KindTesting:
		return true
	}
	return false
}

func significantWords(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) > 3 {
			out[w] = struct{}{}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CrossValidationResult is the output of CrossValidate.
type CrossValidationResult struct {
	Similarity  float64
	Differences []string
	Consensus   bool
}

// CrossValidate compares two results for the same task produced by
// different adapters. Precondition: r1.AdapterID != r2.AdapterID.
func CrossValidate(r1, r2 *task.Result, t *task.Task) (*CrossValidationResult, error) {
	if r1.AdapterID == r2.AdapterID {
		return nil, core.NewFrameworkError("validator.CrossValidate", "validation", core.ErrInvalidConfiguration).
			WithID(r1.AdapterID)
	}

	w1 := wordSet(r1.Output)
	w2 := wordSet(r2.Output)
	similarity := jaccard(w1, w2)

	var diffs []string
	lengthGap := abs(len(r1.Output) - len(r2.Output))
	if lengthGap > 200 {
		diffs = append(diffs, fmt.Sprintf("output length differs by %d characters", lengthGap))
	}

	timeGap := abs64(r1.Metadata.ExecutionTimeMS - r2.Metadata.ExecutionTimeMS)
	if timeGap > 5000 {
		diffs = append(diffs, fmt.Sprintf("execution time differs by %dms", timeGap))
	}

	uniqueLines := uniqueLineCount(r1.Output, r2.Output)
	if uniqueLines >= 5 {
		diffs = append(diffs, fmt.Sprintf("%d lines appear in only one output", uniqueLines))
	}

	return &CrossValidationResult{
		Similarity:  similarity,
		Differences: diffs,
		Consensus:   similarity > 0.8 && len(diffs) < 3,
	}, nil
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func uniqueLineCount(a, b string) int {
	linesA := make(map[string]struct{})
	for _, l := range strings.Split(a, "\n") {
		linesA[l] = struct{}{}
	}
	linesB := make(map[string]struct{})
	for _, l := range strings.Split(b, "\n") {
		linesB[l] = struct{}{}
	}

	count := 0
	for l := range linesA {
		if _, ok := linesB[l]; !ok {
			count++
		}
	}
	for l := range linesB {
		if _, ok := linesA[l]; !ok {
			count++
		}
	}
	return count
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
