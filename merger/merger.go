// Package merger implements the §4.6 strategies for folding several
// adapters' Results for the same Task into one merged record: consensus,
// best-of, combine, and validate. Every function here is pure.
package merger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

// Strategy selects which merge algorithm to run.
type Strategy string

const (
	StrategyConsensus Strategy = "consensus"
	StrategyBestOf    Strategy = "best_of"
	StrategyCombine   Strategy = "combine"
	StrategyValidate  Strategy = "validate"
)

// Options configures one Merge call.
type Options struct {
	Strategy         Strategy
	PreferredAdapter string
	FormatOutput     bool
}

// Contribution records what share of the merged output one adapter supplied.
type Contribution struct {
	AdapterID string
	Share     float64 // percentage, 0-100
}

// Merged is the output of Merge.
type Merged struct {
	Output        string
	Strategy      Strategy
	Contributions []Contribution
	Confidence    float64
	Metadata      map[string]interface{}
}

var fencedBlockRe = regexp.MustCompile("(?s)```.*?```")

// Merge folds results into a single Merged record per opts.Strategy. A
// single result shortcuts straight to a merged record pointing at it,
// regardless of strategy.
func Merge(results []*task.Result, t *task.Task, opts Options) (*Merged, error) {
	successful := onlySuccessful(results)
	if len(successful) == 0 {
		return nil, core.NewFrameworkError("merger.Merge", "no_results", core.ErrNoAdapterAvailable)
	}
	if len(successful) == 1 {
		r := successful[0]
		return &Merged{
			Output:        r.Output,
			Strategy:      opts.Strategy,
			Contributions: []Contribution{{AdapterID: r.AdapterID, Share: 100}},
			Confidence:    r.QualityScore(),
			Metadata:      map[string]interface{}{"single_result": true},
		}, nil
	}

	switch opts.Strategy {
	case StrategyBestOf:
		return bestOf(successful, opts), nil
	case StrategyCombine:
		return combine(successful, t), nil
	case StrategyValidate:
		if len(successful) != 2 {
			return nil, core.NewFrameworkError("merger.Merge", "validation", core.ErrInvalidConfiguration)
		}
		return validateMerge(successful[0], successful[1]), nil
	default:
		return consensus(successful, opts), nil
	}
}

func onlySuccessful(results []*task.Result) []*task.Result {
	out := make([]*task.Result, 0, len(results))
	for _, r := range results {
		if r != nil && r.Success() {
			out = append(out, r)
		}
	}
	return out
}

// --- consensus --------------------------------------------------------

func consensus(results []*task.Result, opts Options) *Merged {
	elementsByAdapter := make([][]string, len(results))
	for i, r := range results {
		elementsByAdapter[i] = extractElements(r.Output)
	}

	var common []string
	for _, elem := range elementsByAdapter[0] {
		if isCommonAcross(elem, elementsByAdapter[1:]) {
			common = append(common, elem)
		}
	}

	if len(common) == 0 {
		return bestOf(results, opts)
	}

	var b strings.Builder
	b.WriteString("Common elements:\n")
	for _, c := range common {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\nPer-adapter detail:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "\n## %s\n%s\n", r.AdapterID, r.Output)
	}

	share := 100.0 / float64(len(results))
	contributions := make([]Contribution, len(results))
	for i, r := range results {
		contributions[i] = Contribution{AdapterID: r.AdapterID, Share: share}
	}

	return &Merged{
		Output:        b.String(),
		Strategy:      StrategyConsensus,
		Contributions: contributions,
		Confidence:    meanPairwiseJaccard(outputsOf(results)),
		Metadata:      map[string]interface{}{"common_elements": len(common)},
	}
}

func isCommonAcross(elem string, others [][]string) bool {
	for _, elements := range others {
		found := false
		for _, other := range elements {
			if jaccard(wordSet(elem), wordSet(other)) > 0.7 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func extractElements(output string) []string {
	var elements []string
	remaining := output

	for _, block := range fencedBlockRe.FindAllString(output, -1) {
		elements = append(elements, block)
		remaining = strings.Replace(remaining, block, "", 1)
	}

	for _, sentence := range splitSentences(remaining) {
		s := strings.TrimSpace(sentence)
		if s != "" {
			elements = append(elements, s)
		}
	}
	return elements
}

var sentenceSplitRe = regexp.MustCompile(`[.!?\n]+`)

func splitSentences(s string) []string {
	return sentenceSplitRe.Split(s, -1)
}

// --- best-of ------------------------------------------------------------

func bestOf(results []*task.Result, opts Options) *Merged {
	var winner *task.Result
	bestScore := -1.0

	for _, r := range results {
		score := r.QualityScore()
		if opts.PreferredAdapter != "" && r.AdapterID == opts.PreferredAdapter {
			score += 0.1
		}
		if score > bestScore {
			bestScore = score
			winner = r
		}
	}

	contributions := make([]Contribution, 0, len(results))
	for _, r := range results {
		share := 0.0
		if r == winner {
			share = 100
		}
		contributions = append(contributions, Contribution{AdapterID: r.AdapterID, Share: share})
	}

	return &Merged{
		Output:        winner.Output,
		Strategy:      StrategyBestOf,
		Contributions: contributions,
		Confidence:    clamp01(bestScore),
		Metadata:      map[string]interface{}{"winner": winner.AdapterID},
	}
}

// --- combine --------------------------------------------------------------

func combine(results []*task.Result, t *task.Task) *Merged {
	type extracted struct {
		adapterID string
		code      []string
		sections  []string // paragraphs and list items, in encounter order
	}

	seen := make(map[string]bool)
	var allCode []string
	var allSections []string
	retainedByAdapter := make(map[string]int)

	extractions := make([]extracted, 0, len(results))
	for _, r := range results {
		e := extracted{adapterID: r.AdapterID}
		e.code = fencedBlockRe.FindAllString(r.Output, -1)
		remaining := r.Output
		for _, c := range e.code {
			remaining = strings.Replace(remaining, c, "", 1)
		}
		e.sections = extractSections(remaining)
		extractions = append(extractions, e)
	}

	for _, e := range extractions {
		for _, c := range e.code {
			key := normalize(c)
			if !seen[key] {
				seen[key] = true
				allCode = append(allCode, c)
				retainedByAdapter[e.adapterID]++
			}
		}
	}
	for _, e := range extractions {
		for _, s := range e.sections {
			key := normalize(s)
			if !seen[key] {
				seen[key] = true
				allSections = append(allSections, s)
				retainedByAdapter[e.adapterID]++
			}
		}
	}

	var b strings.Builder
	if isCodeKind(t.Kind) {
		for _, c := range allCode {
			b.WriteString(c)
			b.WriteString("\n\n")
		}
		for _, s := range allSections {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
	} else {
		for _, s := range allSections {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
		for _, c := range allCode {
			b.WriteString(c)
			b.WriteString("\n\n")
		}
	}

	var totalRetained int
	for _, n := range retainedByAdapter {
		totalRetained += n
	}

	contributions := make([]Contribution, 0, len(results))
	var qualitySum float64
	for _, r := range results {
		qualitySum += r.QualityScore()
		share := 0.0
		if totalRetained > 0 {
			share = 100 * float64(retainedByAdapter[r.AdapterID]) / float64(totalRetained)
		}
		contributions = append(contributions, Contribution{AdapterID: r.AdapterID, Share: share})
	}
	sort.Slice(contributions, func(i, j int) bool { return contributions[i].AdapterID < contributions[j].AdapterID })

	meanQuality := qualitySum / float64(len(results))
	consensusConfidence := meanPairwiseJaccard(outputsOf(results))
	confidence := clamp01(meanQuality + 0.2*consensusConfidence)

	return &Merged{
		Output:        strings.TrimSpace(b.String()),
		Strategy:      StrategyCombine,
		Contributions: contributions,
		Confidence:    confidence,
		Metadata:      map[string]interface{}{"code_blocks": len(allCode), "sections": len(allSections)},
	}
}

var listItemRe = regexp.MustCompile(`^\s*([-*]|\d+\.)\s+`)

func extractSections(s string) []string {
	paragraphs := strings.Split(s, "\n\n")
	var out []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lines := strings.Split(p, "\n")
		isListBlock := true
		for _, l := range lines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			if !listItemRe.MatchString(l) {
				isListBlock = false
				break
			}
		}
		if isListBlock && len(lines) > 1 {
			for _, l := range lines {
				if strings.TrimSpace(l) != "" {
					out = append(out, strings.TrimSpace(l))
				}
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func isCodeKind(k task.Kind) bool {
	switch k {
	case task.KindCodeGeneration, task.KindCodeReview, task.KindDebugging, task.KindRefactoring, task.KindTesting:
		return true
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// --- validate -----------------------------------------------------------

func validateMerge(primary, review *task.Result) *Merged {
	primaryElements := extractElements(primary.Output)
	reviewWords := wordSet(review.Output)

	confirmed := 0
	for _, elem := range primaryElements {
		if jaccard(wordSet(elem), reviewWords) > 0.3 {
			confirmed++
		}
	}

	confidence := 1.0
	if len(primaryElements) > 0 {
		confidence = float64(confirmed) / float64(len(primaryElements))
	}

	output := fmt.Sprintf("## Primary (%s)\n%s\n\n## Review (%s)\n%s", primary.AdapterID, primary.Output, review.AdapterID, review.Output)

	return &Merged{
		Output:   output,
		Strategy: StrategyValidate,
		Contributions: []Contribution{
			{AdapterID: primary.AdapterID, Share: 100},
			{AdapterID: review.AdapterID, Share: 0},
		},
		Confidence: clamp01(confidence),
		Metadata:   map[string]interface{}{"confirmed_elements": confirmed, "total_elements": len(primaryElements)},
	}
}

// --- shared helpers -------------------------------------------------------

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

func outputsOf(results []*task.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Output
	}
	return out
}

func meanPairwiseJaccard(outputs []string) float64 {
	if len(outputs) < 2 {
		return 1.0
	}
	sets := make([]map[string]struct{}, len(outputs))
	for i, o := range outputs {
		sets[i] = wordSet(o)
	}

	var sum float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return sum / float64(pairs)
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
