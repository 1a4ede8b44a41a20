package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/gomind-ai/orchestrator/core"
)

// invalidateByTagScript atomically deletes every key indexed under one tag
// and removes the tag's own index entry, grounded in the same Lua
// check-and-act pattern the coordinator's claim release uses.
const invalidateByTagScript = `
local keys = redis.call('SMEMBERS', KEYS[1])
for _, k in ipairs(keys) do
  redis.call('DEL', k)
end
redis.call('DEL', KEYS[1])
return #keys
`

// RedisCache is the distributed cache tier, backed by core.RedisClient.
// The tag index is stored as Redis Sets (tag:<tag> -> member keys) holding
// fully-namespaced data keys so the Lua invalidation script can DEL them
// directly without re-deriving the client's key formatting.
type RedisCache struct {
	client *core.RedisClient
}

// NewRedisCache wraps client as a distributed Cache.
func NewRedisCache(client *core.RedisClient) *RedisCache {
	return &RedisCache{client: client}
}

// dataKey applies the §4.8 key-space normalisation before namespacing, so
// Get/Set/Delete all address the same Redis key regardless of case or
// punctuation in the caller-supplied key.
func dataKey(key string) string { return "data:" + normalizeKey(key) }
func tagKey(tag string) string  { return "tag:" + tag }

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, dataKey(key))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			_ = c.client.Incr(ctx, "stats:misses")
			return "", false, nil
		}
		return "", false, err
	}
	_ = c.client.Incr(ctx, "stats:hits")
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration, tags ...string) error {
	if err := c.client.Set(ctx, dataKey(key), value, ttl); err != nil {
		return err
	}
	fullKey := c.client.FormatKey(dataKey(key))
	for _, tag := range tags {
		if err := c.client.SAdd(ctx, tagKey(tag), fullKey); err != nil {
			return err
		}
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, dataKey(key))
}

// Clear deletes every key this client's namespace owns by scanning the
// underlying connection directly — core.RedisClient does not expose SCAN,
// so this is one of the few places that reaches through Raw().
func (c *RedisCache) Clear(ctx context.Context) error {
	raw := c.client.Raw()
	pattern := c.client.FormatKey("*")
	iter := raw.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return raw.Del(ctx, keys...).Err()
}

func (c *RedisCache) InvalidateByTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		if _, err := c.client.Eval(ctx, invalidateByTagScript, []string{c.client.FormatKey(tagKey(tag))}); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports hit/miss counters tracked via Redis INCR. Size and
// memory-usage figures require a full key scan, which this tier doesn't
// perform on every Stats call to avoid an O(n) Redis operation on a hot
// metrics path; they are left zero.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	hitsVal, err := c.client.Get(ctx, "stats:hits")
	if err != nil && !errors.Is(err, goredis.Nil) {
		return Stats{}, err
	}
	missesVal, err := c.client.Get(ctx, "stats:misses")
	if err != nil && !errors.Is(err, goredis.Nil) {
		return Stats{}, err
	}

	stats := Stats{
		Hits:   parseCount(hitsVal),
		Misses: parseCount(missesVal),
	}
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats, nil
}

func parseCount(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
