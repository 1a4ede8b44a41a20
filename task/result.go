package task

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one adapter invocation against a Task. Exactly
// one of Output/Error is non-empty (success iff Error == "").
type Result struct {
	ID         string
	TaskID     string
	AdapterID  string
	Output     string
	Error      string
	Metadata   ResultMetadata
	CreatedAt  time.Time
}

// ResultMetadata captures the well-known scalar signals attached to a Result.
type ResultMetadata struct {
	ExecutionTimeMS           int64
	TokensUsed                int
	Model                     string
	Temperature               float32
	RetryCount                int
	ValidatedBy               string
	ValidationScore           float64 // [0,1]
	ValidationRecommendations []string
}

// NewSuccess builds a successful Result for adapterID/taskID.
func NewSuccess(taskID, adapterID, output string, meta ResultMetadata) *Result {
	return &Result{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AdapterID: adapterID,
		Output:    output,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
}

// NewFailure builds a failed Result for adapterID/taskID.
func NewFailure(taskID, adapterID, errMsg string, meta ResultMetadata) *Result {
	return &Result{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AdapterID: adapterID,
		Error:     errMsg,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
}

// Success reports whether the result represents a successful invocation.
func (r *Result) Success() bool {
	return r.Error == ""
}

// QualityScore derives the [0,1] quality signal from retries, validation,
// and execution time per §3: clamp(1 - 0.1*retries + blend(validation) -
// penalty(execution > 10s)).
func (r *Result) QualityScore() float64 {
	score := 1.0 - 0.1*float64(r.Metadata.RetryCount)

	if r.Metadata.ValidatedBy != "" {
		// blend(validation): pull the score halfway toward the validation score.
		score = (score + r.Metadata.ValidationScore) / 2
	}

	if r.Metadata.ExecutionTimeMS > 10000 {
		score -= 0.1
	}

	if !r.Success() {
		score = 0
	}

	return clamp01(score)
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
