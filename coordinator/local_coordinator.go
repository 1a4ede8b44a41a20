package coordinator

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

// localEntry is one priority-heap slot: a task id plus the score it was
// queued with. Scores are snapshots taken at queue time, the same way the
// Redis implementation's ZADD score is a snapshot rather than a live value.
type localEntry struct {
	taskID string
	score  float64
	index  int
}

// priorityHeap is a max-heap over score (container/heap implements a
// min-heap; Less is inverted below so Pop always returns the highest score).
type priorityHeap []*localEntry

func (h priorityHeap) Len() int            { return len(h) }
func (h priorityHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	e := x.(*localEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// LocalCoordinator is an in-memory, single-process Coordinator: a
// mutex-protected priority heap instead of a Redis ZSET, claims and node
// records tracked in plain maps instead of TTL'd keys. This is the pack's
// in-memory/distributed duality pattern applied to the coordinator, the same
// way cache.MemoryCache stands in for cache.RedisCache.
type LocalCoordinator struct {
	mu      sync.Mutex
	queue   priorityHeap
	entries map[string]*QueueEntry
	tasks   map[string]*task.Task
	claims  map[string]string // task id -> owning node id
	nodes   map[string]NodeRecord
	logger  core.Logger
}

// NewLocalCoordinator builds an empty LocalCoordinator.
func NewLocalCoordinator(logger core.Logger) *LocalCoordinator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/coordinator")
	}
	return &LocalCoordinator{
		entries: make(map[string]*QueueEntry),
		tasks:   make(map[string]*task.Task),
		claims:  make(map[string]string),
		nodes:   make(map[string]NodeRecord),
		logger:  logger,
	}
}

func (c *LocalCoordinator) Submit(ctx context.Context, t *task.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &QueueEntry{
		TaskID:      t.ID,
		SubmittedAt: time.Now(),
		Priority:    t.Priority,
		Status:      EntryQueued,
	}
	c.entries[t.ID] = entry
	c.tasks[t.ID] = t
	heap.Push(&c.queue, &localEntry{taskID: t.ID, score: priorityScore(entry.Priority, entry.SubmittedAt)})
	return nil
}

func (c *LocalCoordinator) Claim(ctx context.Context, nodeID string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.queue.Len() > 0 {
		le := heap.Pop(&c.queue).(*localEntry)
		t, ok := c.tasks[le.taskID]
		if !ok {
			continue // task was removed (e.g. cancelled) since it was queued
		}
		entry := c.entries[le.taskID]
		if err := t.Transition(task.StatusInProgress); err != nil {
			// Stale entry left over from a race with a direct Transition call
			// elsewhere; drop it and keep looking.
			continue
		}
		entry.Status = EntryProcessing
		entry.ClaimedBy = nodeID
		c.claims[le.taskID] = nodeID
		return t, nil
	}
	return nil, nil
}

func (c *LocalCoordinator) Complete(ctx context.Context, t *task.Task, result *task.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := t.Transition(task.StatusCompleted); err != nil {
		return err
	}
	if entry, ok := c.entries[t.ID]; ok {
		entry.Status = EntryCompleted
	}
	delete(c.claims, t.ID)
	delete(c.tasks, t.ID)
	return nil
}

func (c *LocalCoordinator) Fail(ctx context.Context, t *task.Task, failureErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := t.Transition(task.StatusFailed); err != nil {
		return err
	}

	entry, ok := c.entries[t.ID]
	if !ok {
		entry = &QueueEntry{TaskID: t.ID, Priority: t.Priority}
		c.entries[t.ID] = entry
	}
	entry.RetryCount++
	delete(c.claims, t.ID)

	if !core.IsRetryable(failureErr) || entry.RetryCount > maxRetries {
		entry.Status = EntryFailed
		delete(c.tasks, t.ID)
		return nil
	}

	if err := t.Transition(task.StatusPending); err != nil {
		return err
	}
	entry.Status = EntryQueued
	entry.SubmittedAt = time.Now()
	heap.Push(&c.queue, &localEntry{taskID: t.ID, score: priorityScore(entry.Priority, entry.SubmittedAt)})
	return nil
}

func (c *LocalCoordinator) Heartbeat(ctx context.Context, node NodeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	node.LastHeartbeat = time.Now()
	c.nodes[node.ID] = node
	return nil
}

func (c *LocalCoordinator) ActiveNodes(ctx context.Context) ([]NodeRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	active := make([]NodeRecord, 0, len(c.nodes))
	for id, n := range c.nodes {
		if now.Sub(n.LastHeartbeat) > nodeTTL {
			delete(c.nodes, id)
			continue
		}
		active = append(active, n)
	}
	return active, nil
}

func (c *LocalCoordinator) QueueDepth(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.queue.Len()), nil
}

func (c *LocalCoordinator) Close() error { return nil }

var _ Coordinator = (*LocalCoordinator)(nil)
