// Package coordinator implements the distributed coordinator (§4.7): a
// shared priority queue with atomic claim, node heartbeat/failover, and
// orphan re-queue. Two implementations share one interface: RedisCoordinator
// for multi-node deployments and LocalCoordinator, an in-memory
// single-process stand-in used in tests and single-node deployments — the
// same in-memory/distributed duality the teacher applies to its cache
// (SimpleCache vs a Redis-backed store).
package coordinator

import (
	"context"
	"time"

	"github.com/gomind-ai/orchestrator/task"
)

// EntryStatus tracks a queue entry's lifecycle, distinct from task.Status:
// a task can be "queued" again (retried) without its own state machine
// leaving Pending, since re-queue only happens after a Failed->Pending
// transition.
type EntryStatus string

const (
	EntryQueued     EntryStatus = "queued"
	EntryProcessing EntryStatus = "processing"
	EntryCompleted  EntryStatus = "completed"
	EntryFailed     EntryStatus = "failed"
)

// QueueEntry is the task envelope tracked alongside the task body: submission
// timestamp, priority, retry count, and current status, per §3's "Queue
// entry (distributed)".
type QueueEntry struct {
	TaskID      string
	SubmittedAt time.Time
	Priority    task.Priority
	RetryCount  int
	Status      EntryStatus
	ClaimedBy   string
}

// NodeStatus is a cluster node's lifecycle state.
type NodeStatus string

const (
	NodeInitializing NodeStatus = "initializing"
	NodeActive       NodeStatus = "active"
	NodeDraining     NodeStatus = "draining"
	NodeFailed       NodeStatus = "failed"
)

// NodeRecord describes one cluster member, per §3's "Node record".
type NodeRecord struct {
	ID             string
	Hostname       string
	CapabilityTags []string
	Status         NodeStatus
	LastHeartbeat  time.Time
	TasksProcessed int64
	CurrentLoad    int
	MaxConcurrency int
}

// maxRetries is the re-queue ceiling from §4.7: past this many retries a task
// is marked failed, terminal.
const maxRetries = 3

// priorityWeight maps a task priority to the score offset used by both
// coordinator implementations. The spec states the priority score as
// `now_ms - weight(priority)` with "lower score => higher priority" and also
// "the consumer pops the maximum score to get the highest weight" -- those
// two clauses are only simultaneously true if priority dominates the score
// positively, so this implementation uses `weight(priority) - now_ms`
// (documented as an Open Question resolution): a higher-priority task gets a
// larger score, and among equal priority an older (smaller now_ms) task gets
// a larger score too, so ZPOPMAX/heap-max consistently prefers
// highest-priority-then-oldest.
func priorityWeight(p task.Priority) float64 {
	switch p {
	case task.PriorityUrgent:
		return 1.5e9
	case task.PriorityHigh:
		return 1e9
	case task.PriorityMedium:
		return 5e8
	default:
		return 0
	}
}

// priorityScore computes the ordering score for a task submitted at submittedAt.
func priorityScore(p task.Priority, submittedAt time.Time) float64 {
	return priorityWeight(p) - float64(submittedAt.UnixMilli())
}

// Coordinator is the distributed task queue contract shared by
// RedisCoordinator and LocalCoordinator.
type Coordinator interface {
	// Submit atomically writes the task body, inserts it into the priority
	// queue, and publishes task:submitted.
	Submit(ctx context.Context, t *task.Task) error

	// Claim atomically pops the highest-priority (then oldest) queued task
	// for nodeID and marks it processing. Returns (nil, nil) if the queue is
	// empty.
	Claim(ctx context.Context, nodeID string) (*task.Task, error)

	// Complete marks a claimed task completed, persists the result reference,
	// publishes task:completed, and releases the claim.
	Complete(ctx context.Context, t *task.Task, result *task.Result) error

	// Fail marks a claimed task failed. If err is retryable and the entry's
	// retry count has not exceeded the §4.7 ceiling, the task transitions
	// back to Pending and is re-queued with a refreshed score; otherwise it
	// is left Failed, terminal.
	Fail(ctx context.Context, t *task.Task, failureErr error) error

	// Heartbeat refreshes node's liveness record.
	Heartbeat(ctx context.Context, node NodeRecord) error

	// ActiveNodes returns the current cluster membership.
	ActiveNodes(ctx context.Context) ([]NodeRecord, error)

	// QueueDepth reports the number of queued (not yet claimed) tasks.
	QueueDepth(ctx context.Context) (int64, error)

	// Close releases background resources (heartbeat/failover goroutines).
	Close() error
}
