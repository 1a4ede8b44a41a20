package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

const (
	queueKey        = "task:queue"
	activeNodesKey  = "nodes:active"
	taskTTL         = 24 * time.Hour
	claimTTL        = 300 * time.Second
	nodeTTL         = 60 * time.Second
	chanTaskSubmit  = "task:submitted"
	chanTaskDone    = "task:completed"
	chanNodeFailure = "node:failover"
)

func taskKey(id string) string        { return "task:" + id }
func entryKey(id string) string       { return "task:entry:" + id }
func claimKey(id string) string       { return "task:claim:" + id }
func resultKey(id string) string      { return "task:result:" + id }
func nodeKey(id string) string        { return "node:" + id }
func nodeClaimsKey(id string) string  { return "node:claims:" + id }

// claimScript pops the highest-scoring queue entry and records the claim in
// one round trip so no two nodes ever observe a successful claim for the
// same task id, grounded in the teacher's SETNX-with-TTL claim pattern
// (orchestration/hitl_checkpoint_store.go's claimExpiredCheckpoint) combined
// with the atomic pop the spec calls for.
const claimScript = `
local entries = redis.call('ZPOPMAX', KEYS[1])
if #entries == 0 then
  return nil
end
local id = entries[1]
redis.call('SET', KEYS[2] .. id, ARGV[1], 'EX', ARGV[2])
redis.call('SADD', KEYS[3] .. ARGV[1], id)
return id
`

// releaseClaimScript deletes a claim only if it is still owned by the
// expected node, the same check-and-delete idiom the teacher uses to release
// an expiry-processing claim.
const releaseClaimScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

// RedisCoordinator is the distributed coordinator backed by a shared Redis
// instance. Grounded in orchestration/redis_task_queue.go for its
// key/config/logger conventions and orchestration/hitl_checkpoint_store.go
// for the SETNX+TTL claim and Lua check-and-delete release patterns.
type RedisCoordinator struct {
	client *core.RedisClient
	logger core.Logger

	stopFailover chan struct{}
	failoverOnce sync.Once
}

// NewRedisCoordinator wraps client as a Coordinator. Callers should call
// StartFailoverWatcher separately to enable peer-failure detection.
func NewRedisCoordinator(client *core.RedisClient, logger core.Logger) *RedisCoordinator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/coordinator")
	}
	return &RedisCoordinator{client: client, logger: logger}
}

func (c *RedisCoordinator) Submit(ctx context.Context, t *task.Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("coordinator.Submit: marshal task: %w", err)
	}
	entry := QueueEntry{
		TaskID:      t.ID,
		SubmittedAt: time.Now(),
		Priority:    t.Priority,
		Status:      EntryQueued,
	}
	entryBody, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("coordinator.Submit: marshal entry: %w", err)
	}
	score := priorityScore(t.Priority, entry.SubmittedAt)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.client.FormatKey(taskKey(t.ID)), body, taskTTL)
	pipe.Set(ctx, c.client.FormatKey(entryKey(t.ID)), entryBody, taskTTL)
	pipe.ZAdd(ctx, c.client.FormatKey(queueKey), &goredis.Z{Score: score, Member: t.ID})
	pipe.Publish(ctx, c.client.FormatKey(chanTaskSubmit), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.ErrorWithContext(ctx, "failed to submit task", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
		return core.NewFrameworkError("coordinator.Submit", "coordinator", core.ErrRequestFailed).WithID(t.ID)
	}
	return nil
}

func (c *RedisCoordinator) Claim(ctx context.Context, nodeID string) (*task.Task, error) {
	res, err := c.client.Eval(ctx, claimScript,
		[]string{c.client.FormatKey(queueKey), c.client.FormatKey("task:claim:"), c.client.FormatKey("node:claims:")},
		nodeID, int(claimTTL.Seconds()))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, core.NewFrameworkError("coordinator.Claim", "coordinator", core.ErrClaimFailed)
	}
	if res == nil {
		return nil, nil
	}
	taskID, ok := res.(string)
	if !ok {
		return nil, core.NewFrameworkError("coordinator.Claim", "coordinator", core.ErrClaimFailed)
	}

	body, err := c.client.Get(ctx, taskKey(taskID))
	if err != nil {
		return nil, core.NewFrameworkError("coordinator.Claim", "coordinator", core.ErrTaskNotFound).WithID(taskID)
	}
	var t task.Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("coordinator.Claim: unmarshal task %s: %w", taskID, err)
	}

	if err := t.Transition(task.StatusInProgress); err != nil {
		return nil, err
	}
	updatedBody, err := json.Marshal(&t)
	if err != nil {
		return nil, fmt.Errorf("coordinator.Claim: marshal task %s: %w", taskID, err)
	}
	if err := c.client.Set(ctx, taskKey(taskID), updatedBody, taskTTL); err != nil {
		return nil, core.NewFrameworkError("coordinator.Claim", "coordinator", core.ErrRequestFailed).WithID(taskID)
	}
	c.updateEntry(ctx, taskID, func(e *QueueEntry) {
		e.Status = EntryProcessing
		e.ClaimedBy = nodeID
	})
	return &t, nil
}

func (c *RedisCoordinator) Complete(ctx context.Context, t *task.Task, result *task.Result) error {
	if err := t.Transition(task.StatusCompleted); err != nil {
		return err
	}
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	resultBody, err := json.Marshal(result)
	if err != nil {
		return err
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.client.FormatKey(taskKey(t.ID)), body, taskTTL)
	pipe.Set(ctx, c.client.FormatKey(resultKey(t.ID)), resultBody, taskTTL)
	pipe.Publish(ctx, c.client.FormatKey(chanTaskDone), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewFrameworkError("coordinator.Complete", "coordinator", core.ErrRequestFailed).WithID(t.ID)
	}
	c.updateEntry(ctx, t.ID, func(e *QueueEntry) { e.Status = EntryCompleted })
	c.releaseClaim(ctx, t.ID)
	return nil
}

// Fail marks a claimed task failed and, if the error is retryable and the
// entry has not exceeded maxRetries, transitions it back to Pending and
// re-inserts it into the queue with a refreshed score (§4.7 "Re-queue").
func (c *RedisCoordinator) Fail(ctx context.Context, t *task.Task, failureErr error) error {
	if err := t.Transition(task.StatusFailed); err != nil {
		return err
	}

	entry := c.loadEntry(ctx, t.ID)
	entry.RetryCount++

	if !core.IsRetryable(failureErr) || entry.RetryCount > maxRetries {
		entry.Status = EntryFailed
		c.saveEntry(ctx, entry)
		c.releaseClaim(ctx, t.ID)
		return nil
	}

	if err := t.Transition(task.StatusPending); err != nil {
		return err
	}
	entry.Status = EntryQueued
	entry.SubmittedAt = time.Now()
	c.saveEntry(ctx, entry)

	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	score := priorityScore(t.Priority, entry.SubmittedAt)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.client.FormatKey(taskKey(t.ID)), body, taskTTL)
	pipe.ZAdd(ctx, c.client.FormatKey(queueKey), &goredis.Z{Score: score, Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewFrameworkError("coordinator.Fail", "coordinator", core.ErrRequestFailed).WithID(t.ID)
	}
	c.releaseClaim(ctx, t.ID)
	return nil
}

func (c *RedisCoordinator) Heartbeat(ctx context.Context, node NodeRecord) error {
	node.LastHeartbeat = time.Now()
	body, err := json.Marshal(node)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, nodeKey(node.ID), body, nodeTTL); err != nil {
		return err
	}
	return c.client.SAdd(ctx, activeNodesKey, node.ID)
}

// StartHeartbeats spawns a ticker goroutine that refreshes node's record
// every interval until stopped, per §4.7's "heartbeat thread runs on an
// independent periodic schedule".
func (c *RedisCoordinator) StartHeartbeats(ctx context.Context, node NodeRecord, interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Heartbeat(ctx, node); err != nil {
					c.logger.WarnWithContext(ctx, "heartbeat failed", map[string]interface{}{"node_id": node.ID, "error": err.Error()})
				}
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stopCh) }) }
}

func (c *RedisCoordinator) ActiveNodes(ctx context.Context) ([]NodeRecord, error) {
	ids, err := c.client.SMembers(ctx, activeNodesKey)
	if err != nil {
		return nil, err
	}
	nodes := make([]NodeRecord, 0, len(ids))
	for _, id := range ids {
		body, err := c.client.Get(ctx, nodeKey(id))
		if err != nil {
			continue // expired since the SMEMBERS read; failover watcher will reap it
		}
		var n NodeRecord
		if err := json.Unmarshal([]byte(body), &n); err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (c *RedisCoordinator) QueueDepth(ctx context.Context) (int64, error) {
	return c.client.ZCard(ctx, queueKey)
}

// StartFailoverWatcher periodically scans nodes:active for members whose
// node:<id> key has expired, publishes node:failover, and re-queues any
// tasks that member had claimed (§4.7 "Heartbeat & failover").
func (c *RedisCoordinator) StartFailoverWatcher(ctx context.Context, scanInterval time.Duration) {
	c.failoverOnce.Do(func() {
		c.stopFailover = make(chan struct{})
		go func() {
			ticker := time.NewTicker(scanInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.scanForFailedNodes(ctx)
				case <-c.stopFailover:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	})
}

func (c *RedisCoordinator) scanForFailedNodes(ctx context.Context) {
	ids, err := c.client.SMembers(ctx, activeNodesKey)
	if err != nil {
		return
	}
	for _, id := range ids {
		if exists, err := c.client.Exists(ctx, nodeKey(id)); err == nil && exists {
			continue
		}
		c.client.SRem(ctx, activeNodesKey, id)
		c.client.Publish(ctx, chanNodeFailure, id)
		c.requeueOrphansOf(ctx, id)
	}
}

func (c *RedisCoordinator) requeueOrphansOf(ctx context.Context, nodeID string) {
	claimedIDs, err := c.client.SMembers(ctx, nodeClaimsKey(nodeID))
	if err != nil {
		return
	}
	for _, id := range claimedIDs {
		body, err := c.client.Get(ctx, taskKey(id))
		if err != nil {
			continue
		}
		var t task.Task
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			continue
		}
		// A claim the node held when it died; treat as a transient failure
		// for re-queue purposes regardless of what it was doing.
		_ = c.Fail(ctx, &t, core.ErrClaimFailed)
		c.client.SRem(ctx, nodeClaimsKey(nodeID), id)
	}
}

func (c *RedisCoordinator) releaseClaim(ctx context.Context, taskID string) {
	if _, err := c.client.Eval(ctx, releaseClaimScript, []string{c.client.FormatKey(claimKey(taskID))}, ""); err != nil {
		c.logger.WarnWithContext(ctx, "failed to release claim", map[string]interface{}{"task_id": taskID, "error": err.Error()})
	}
	_ = c.client.Del(ctx, claimKey(taskID))
}

func (c *RedisCoordinator) loadEntry(ctx context.Context, taskID string) QueueEntry {
	entry := QueueEntry{TaskID: taskID}
	body, err := c.client.Get(ctx, entryKey(taskID))
	if err != nil {
		return entry
	}
	_ = json.Unmarshal([]byte(body), &entry)
	return entry
}

func (c *RedisCoordinator) saveEntry(ctx context.Context, entry QueueEntry) {
	body, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, entryKey(entry.TaskID), body, taskTTL)
}

func (c *RedisCoordinator) updateEntry(ctx context.Context, taskID string, mutate func(*QueueEntry)) {
	entry := c.loadEntry(ctx, taskID)
	mutate(&entry)
	c.saveEntry(ctx, entry)
}

var _ Coordinator = (*RedisCoordinator)(nil)

func (c *RedisCoordinator) Close() error {
	if c.stopFailover != nil {
		select {
		case <-c.stopFailover:
		default:
			close(c.stopFailover)
		}
	}
	return nil
}
