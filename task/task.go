// Package task defines the Task/Result data model and the task lifecycle
// state machine. Task and Result are typed structs — not
// map[string]interface{} bags — with an Extensions map carrying only
// opaque scalars, mirroring the teacher's Task/TaskOptions/TaskError shape.
package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gomind-ai/orchestrator/core"
)

// Kind is the closed set of typed task intents.
type Kind string

const (
	KindCodeGeneration Kind = "code_generation"
	KindCodeReview     Kind = "code_review"
	KindDebugging      Kind = "debugging"
	KindRefactoring    Kind = "refactoring"
	KindDocumentation  Kind = "documentation"
	KindTesting        Kind = "testing"
	KindArchitecture   Kind = "architecture"
	KindSearch         Kind = "search"
	KindMultimodal     Kind = "multimodal"
	KindValidation     Kind = "validation"
)

// IsValid reports whether k is one of the closed set of task kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindCodeGeneration, KindCodeReview, KindDebugging, KindRefactoring,
		KindDocumentation, KindTesting, KindArchitecture, KindSearch,
		KindMultimodal, KindValidation:
		return true
	}
	return false
}

// Priority is an ordered small set, low < medium < high < urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Status is the task lifecycle state machine (§4.1):
// Pending -> InProgress -> {Completed, Failed, Cancelled}; Completed ->
// Validated; Failed -> Pending (retry). Cancelled and Validated are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusValidated  Status = "validated"
)

// IsTerminal reports whether s is a terminal state with no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusValidated
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	case StatusCompleted:
		return next == StatusValidated
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// Constraints are the well-known execution constraints on a task.
type Constraints struct {
	TimeoutMS        int64
	MaxRetries       int
	PreferredAdapter string
}

// Metadata carries the well-known metadata fields plus an Extensions map
// for opaque scalars that don't warrant a typed field.
type Metadata struct {
	Tags        []string
	Context     map[string]string
	Constraints Constraints
	Extensions  map[string]interface{}
}

// Task is the unit of work submitted to the orchestrator.
type Task struct {
	ID         string
	Kind       Kind
	Prompt     string
	Priority   Priority
	Status     Status
	Metadata   Metadata
	OwnerID    string
	TemplateID string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	mu sync.Mutex
}

const (
	maxPromptLength  = 10000
	minTimeoutMS     = 1000
	defaultTimeoutMS = 30000
	defaultMaxRetry  = 3
)

// New constructs a Task, validating the §3 invariants: prompt non-empty and
// <= 10000 characters, constraints.timeout >= 1000ms. An invalid
// construction returns a FrameworkError of kind "validation".
func New(kind Kind, prompt string, priority Priority, opts ...Option) (*Task, error) {
	if prompt == "" {
		return nil, validationErr("task.New", "prompt must not be empty")
	}
	if len(prompt) > maxPromptLength {
		return nil, validationErr("task.New", fmt.Sprintf("prompt exceeds %d characters", maxPromptLength))
	}
	if !kind.IsValid() {
		return nil, validationErr("task.New", fmt.Sprintf("unknown task kind %q", kind))
	}

	now := time.Now()
	t := &Task{
		ID:       uuid.NewString(),
		Kind:     kind,
		Prompt:   prompt,
		Priority: priority,
		Status:   StatusPending,
		Metadata: Metadata{
			Constraints: Constraints{
				TimeoutMS:  defaultTimeoutMS,
				MaxRetries: defaultMaxRetry,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.Metadata.Constraints.TimeoutMS < minTimeoutMS {
		return nil, validationErr("task.New", fmt.Sprintf("constraints.timeout must be >= %dms", minTimeoutMS))
	}

	return t, nil
}

// Option configures a Task at construction time.
type Option func(*Task)

func WithTags(tags ...string) Option {
	return func(t *Task) { t.Metadata.Tags = tags }
}

func WithContext(ctx map[string]string) Option {
	return func(t *Task) { t.Metadata.Context = ctx }
}

func WithConstraints(c Constraints) Option {
	return func(t *Task) {
		if c.TimeoutMS == 0 {
			c.TimeoutMS = t.Metadata.Constraints.TimeoutMS
		}
		if c.MaxRetries == 0 {
			c.MaxRetries = t.Metadata.Constraints.MaxRetries
		}
		t.Metadata.Constraints = c
	}
}

func WithOwner(ownerID string) Option {
	return func(t *Task) { t.OwnerID = ownerID }
}

func WithTemplate(templateID string) Option {
	return func(t *Task) { t.TemplateID = templateID }
}

func WithExtension(key string, value interface{}) Option {
	return func(t *Task) {
		if t.Metadata.Extensions == nil {
			t.Metadata.Extensions = make(map[string]interface{})
		}
		t.Metadata.Extensions[key] = value
	}
}

// Transition moves the task to next if the state machine allows it,
// updating UpdatedAt. Concurrent callers are serialized per-task via an
// internal mutex; ownership of a claimed task does not bypass this lock.
func (t *Task) Transition(next Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.Status.CanTransitionTo(next) {
		return core.NewFrameworkError("task.Transition", "validation", core.ErrInvalidTransition).WithID(t.ID)
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

// SetPrompt edits the prompt; only allowed while Pending.
func (t *Task) SetPrompt(prompt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status != StatusPending {
		return core.NewFrameworkError("task.SetPrompt", "validation", core.ErrInvalidTransition).WithID(t.ID)
	}
	if prompt == "" || len(prompt) > maxPromptLength {
		return validationErr("task.SetPrompt", "prompt must be non-empty and <= 10000 characters")
	}
	t.Prompt = prompt
	t.UpdatedAt = time.Now()
	return nil
}

// SetPriority updates the priority; allowed in any non-terminal state.
func (t *Task) SetPriority(p Priority) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status.IsTerminal() {
		return core.NewFrameworkError("task.SetPriority", "validation", core.ErrInvalidTransition).WithID(t.ID)
	}
	t.Priority = p
	t.UpdatedAt = time.Now()
	return nil
}

func validationErr(op, msg string) error {
	return &core.FrameworkError{Op: op, Kind: "validation", Message: msg}
}
