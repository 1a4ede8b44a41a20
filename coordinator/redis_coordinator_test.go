//go:build integration
// +build integration

package coordinator

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

func newTestRedisCoordinator(t *testing.T) (*RedisCoordinator, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBCoordinator,
		Namespace: "test-coordinator",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCoordinator(client, nil), mr
}

func TestRedisCoordinator_SubmitThenClaim(t *testing.T) {
	c, _ := newTestRedisCoordinator(t)
	ctx := context.Background()

	tk := mustTask(t, task.KindCodeReview, "review this diff", task.PriorityMedium)
	require.NoError(t, c.Submit(ctx, tk))

	claimed, err := c.Claim(ctx, "node-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, tk.ID, claimed.ID)
	require.Equal(t, task.StatusInProgress, claimed.Status)
}

func TestRedisCoordinator_ClaimOnEmptyQueueReturnsNil(t *testing.T) {
	c, _ := newTestRedisCoordinator(t)
	claimed, err := c.Claim(context.Background(), "node-1")
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestRedisCoordinator_HigherPriorityClaimedFirst(t *testing.T) {
	c, _ := newTestRedisCoordinator(t)
	ctx := context.Background()

	low := mustTask(t, task.KindSearch, "low priority search", task.PriorityLow)
	urgent := mustTask(t, task.KindSearch, "urgent search", task.PriorityUrgent)

	require.NoError(t, c.Submit(ctx, low))
	require.NoError(t, c.Submit(ctx, urgent))

	first, err := c.Claim(ctx, "node-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, urgent.ID, first.ID)
}

func TestRedisCoordinator_CompleteReleasesClaim(t *testing.T) {
	c, _ := newTestRedisCoordinator(t)
	ctx := context.Background()

	tk := mustTask(t, task.KindDocumentation, "write docs", task.PriorityMedium)
	require.NoError(t, c.Submit(ctx, tk))
	claimed, err := c.Claim(ctx, "node-1")
	require.NoError(t, err)

	result := task.NewSuccess(claimed.ID, "adapter-a", "done", task.ResultMetadata{})
	require.NoError(t, c.Complete(ctx, claimed, result))
	require.Equal(t, task.StatusCompleted, claimed.Status)

	exists, err := c.client.Exists(ctx, claimKey(claimed.ID))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRedisCoordinator_FailRequeuesRetryableError(t *testing.T) {
	c, _ := newTestRedisCoordinator(t)
	ctx := context.Background()

	tk := mustTask(t, task.KindArchitecture, "design the service", task.PriorityMedium)
	require.NoError(t, c.Submit(ctx, tk))
	claimed, err := c.Claim(ctx, "node-1")
	require.NoError(t, err)

	require.NoError(t, c.Fail(ctx, claimed, core.ErrRequestFailed))
	require.Equal(t, task.StatusPending, claimed.Status)

	depth, err := c.QueueDepth(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestRedisCoordinator_HeartbeatTracksActiveNodes(t *testing.T) {
	c, _ := newTestRedisCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx, NodeRecord{ID: "node-1", Status: NodeActive, MaxConcurrency: 2}))

	nodes, err := c.ActiveNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "node-1", nodes[0].ID)
}

func TestRedisCoordinator_FailoverWatcherRequeuesOrphanedClaim(t *testing.T) {
	c, mr := newTestRedisCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx, NodeRecord{ID: "node-dead", Status: NodeActive}))

	tk := mustTask(t, task.KindRefactoring, "rename the package", task.PriorityMedium)
	require.NoError(t, c.Submit(ctx, tk))
	_, err := c.Claim(ctx, "node-dead")
	require.NoError(t, err)

	mr.FastForward(2 * nodeTTL)

	c.scanForFailedNodes(ctx)

	depth, err := c.QueueDepth(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	nodes, err := c.ActiveNodes(ctx)
	require.NoError(t, err)
	require.Empty(t, nodes)
}
