package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

func mustTask(t *testing.T, kind task.Kind, prompt string) *task.Task {
	tk, err := task.New(kind, prompt, task.PriorityMedium)
	require.NoError(t, err)
	return tk
}

func TestValidate_ScoresAreClampedToUnitInterval(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r := task.NewSuccess(tk.ID, "a1", "a reasonably complete answer about docs", task.ResultMetadata{})

	criteria := []Criterion{
		{Name: "over", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return 5 }},
	}
	outcome := Validate(r, tk, criteria, nil)
	assert.Equal(t, 1.0, outcome.Score)
	assert.Equal(t, 1.0, outcome.CriterionScores["over"])

	criteria = []Criterion{
		{Name: "under", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return -5 }},
	}
	outcome = Validate(r, tk, criteria, nil)
	assert.Equal(t, 0.0, outcome.Score)
	assert.Equal(t, 0.0, outcome.CriterionScores["under"])
}

func TestValidate_PassThresholdIsPointSeven(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r := task.NewSuccess(tk.ID, "a1", "output", task.ResultMetadata{})

	below := []Criterion{
		{Name: "c", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return 0.69 }},
	}
	outcome := Validate(r, tk, below, nil)
	assert.False(t, outcome.IsValid)

	atThreshold := []Criterion{
		{Name: "c", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return 0.7 }},
	}
	outcome = Validate(r, tk, atThreshold, nil)
	assert.True(t, outcome.IsValid)
}

func TestValidate_CriterionBelowPointSixYieldsRecommendation(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r := task.NewSuccess(tk.ID, "a1", "output", task.ResultMetadata{})

	criteria := []Criterion{
		{Name: "weak", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return 0.59 }},
	}
	outcome := Validate(r, tk, criteria, nil)
	require.Len(t, outcome.Recommendations, 1)
	assert.Contains(t, outcome.Recommendations[0], "weak")

	criteria = []Criterion{
		{Name: "ok", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return 0.6 }},
	}
	outcome = Validate(r, tk, criteria, nil)
	assert.Empty(t, outcome.Recommendations)
}

type stubHintSource struct {
	id adapter.ID
	ok bool
}

func (s stubHintSource) Suggest(task.Kind) (adapter.ID, bool) { return s.id, s.ok }

func TestValidate_FlagsAdapterMismatchAgainstHint(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r := task.NewSuccess(tk.ID, "a1", "output", task.ResultMetadata{})
	criteria := []Criterion{
		{Name: "c", Weight: 1, Score: func(*task.Result, *task.Task) float64 { return 1 }},
	}

	outcome := Validate(r, tk, criteria, stubHintSource{id: "a2", ok: true})
	require.Len(t, outcome.Recommendations, 1)
	assert.Contains(t, outcome.Recommendations[0], "a2")

	outcome = Validate(r, tk, criteria, stubHintSource{id: "a1", ok: true})
	assert.Empty(t, outcome.Recommendations)

	outcome = Validate(r, tk, criteria, stubHintSource{ok: false})
	assert.Empty(t, outcome.Recommendations)

	outcome = Validate(r, tk, criteria, nil)
	assert.Empty(t, outcome.Recommendations)
}

func TestCrossValidate_RejectsSameAdapter(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r1 := task.NewSuccess(tk.ID, "a1", "same output", task.ResultMetadata{})
	r2 := task.NewSuccess(tk.ID, "a1", "same output", task.ResultMetadata{})

	_, err := CrossValidate(r1, r2, tk)
	require.Error(t, err)
	var fe *core.FrameworkError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestCrossValidate_IdenticalOutputsReachConsensus(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r1 := task.NewSuccess(tk.ID, "a1", "the quick brown fox jumps", task.ResultMetadata{ExecutionTimeMS: 100})
	r2 := task.NewSuccess(tk.ID, "a2", "the quick brown fox jumps", task.ResultMetadata{ExecutionTimeMS: 150})

	out, err := CrossValidate(r1, r2, tk)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Similarity)
	assert.True(t, out.Consensus)
	assert.Empty(t, out.Differences)
}

func TestCrossValidate_DivergentOutputsFailConsensus(t *testing.T) {
	tk := mustTask(t, task.KindDocumentation, "write some docs")
	r1 := task.NewSuccess(tk.ID, "a1", "alpha beta gamma delta epsilon", task.ResultMetadata{ExecutionTimeMS: 100})
	r2 := task.NewSuccess(tk.ID, "a2", "zero one two three four five six seven eight nine ten eleven twelve thirteen", task.ResultMetadata{ExecutionTimeMS: 20000})

	out, err := CrossValidate(r1, r2, tk)
	require.NoError(t, err)
	assert.False(t, out.Consensus)
	assert.NotEmpty(t, out.Differences)
}
