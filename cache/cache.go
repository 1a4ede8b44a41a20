// Package cache implements the §4.8 result cache: an in-memory LRU tier
// (cache.MemoryCache) and a Redis-backed distributed tier (cache.RedisCache)
// behind one Cache interface, both supporting tag-based bulk invalidation.
package cache

import (
	"context"
	"strings"
	"time"
)

// Stats is a point-in-time snapshot of cache performance.
type Stats struct {
	Size        int
	Hits        int64
	Misses      int64
	Evictions   int64
	HitRate     float64
	MemoryBytes int64
}

// Cache is the shared contract for both the in-memory and Redis-backed
// tiers. Value is an opaque string (a Result's serialized output); the
// cache never interprets it.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration, tags ...string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	InvalidateByTags(ctx context.Context, tags ...string) error
	Stats(ctx context.Context) (Stats, error)
}

// normalizeKey maps a caller-supplied key into the §4.8 normalised key
// space: lowercase, with every rune outside [a-z0-9:_-] replaced by '_'.
// Both cache tiers apply this on Get/Set/Delete so "Foo Bar" and "foo_bar"
// address the same slot.
func normalizeKey(key string) string {
	key = strings.ToLower(key)
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ':', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
