package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/gomind-ai/orchestrator/core"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBCache,
		Namespace: "test-cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client), mr
}

func TestRedisCache_SetThenGet(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))
	v, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)
}

func TestRedisCache_MissReturnsFalseNoError(t *testing.T) {
	c, _ := newTestRedisCache(t)
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_InvalidateByTagsRemovesTaggedKeys(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute, "taskA"))
	require.NoError(t, c.Set(ctx, "k2", "v2", time.Minute, "taskB"))

	require.NoError(t, c.InvalidateByTags(ctx, "taskA"))

	_, ok1, _ := c.Get(ctx, "k1")
	_, ok2, _ := c.Get(ctx, "k2")
	require.False(t, ok1)
	require.True(t, ok2)
}

func TestRedisCache_DeleteRemovesKey(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, c.Delete(ctx, "k1"))

	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_StatsTracksHitsAndMisses(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))
	_, _, _ = c.Get(ctx, "k1")
	_, _, _ = c.Get(ctx, "missing")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestRedisCache_KeysNormalizeToTheSameSlot(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "Task:ABC 123!", "v1", time.Minute))
	v, ok, err := c.Get(ctx, "task:abc_123_")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	require.NoError(t, c.Delete(ctx, "TASK:abc 123!"))
	_, ok, err = c.Get(ctx, "task:abc_123_")
	require.NoError(t, err)
	require.False(t, ok)
}
