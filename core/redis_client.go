// Package core's RedisClient wraps go-redis with database isolation,
// key namespacing, and the primitives the distributed packages build on:
// claim locks (SetNX+TTL), Lua scripts for atomic check-and-act, sorted
// sets for priority queues, and pub/sub for the event bus.
//
// Database allocation keeps unrelated subsystems from colliding when they
// share one Redis instance:
//   - DB 0: task store
//   - DB 1: result cache
//   - DB 2: distributed coordinator (claims, priority queue, heartbeats)
//   - DB 3: learning feedback snapshots
//   - DB 4: event bus pub/sub
//   - DB 5-15: available for extensions
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient provides a simplified Redis interface for modules with DB isolation.
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger
}

// RedisClientOptions configures the Redis client.
type RedisClientOptions struct {
	RedisURL  string
	DB        int
	Namespace string
	Logger    Logger
}

// NewRedisClient creates a new Redis client with specified options.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis DB %d: %w", opts.DB, ErrConnectionFailed)
	}

	rc := &RedisClient{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    opts.Logger,
	}

	if rc.logger != nil {
		rc.logger.Info("Redis client connected", map[string]interface{}{
			"db":        opts.DB,
			"db_name":   GetRedisDBName(opts.DB),
			"namespace": opts.Namespace,
		})
	}

	return rc, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// GetDB returns the DB number being used.
func (r *RedisClient) GetDB() int { return r.dbID }

// GetNamespace returns the namespace being used.
func (r *RedisClient) GetNamespace() string { return r.namespace }

// Raw exposes the underlying go-redis client for operations this wrapper
// doesn't cover (used sparingly, e.g. transactions with WATCH).
func (r *RedisClient) Raw() *redis.Client { return r.client }

func (r *RedisClient) formatKey(key string) string {
	if r.namespace != "" {
		return fmt.Sprintf("%s:%s", r.namespace, key)
	}
	return key
}

// --- Basic key/value ---

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.formatKey(key)).Result()
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, r.formatKey(key), value, ttl).Err()
}

// SetNX sets key only if it does not already exist, returning true if the
// set succeeded. This is the building block for claim locks.
func (r *RedisClient) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.formatKey(key), value, ttl).Result()
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	formatted := make([]string, len(keys))
	for i, key := range keys {
		formatted[i] = r.formatKey(key)
	}
	return r.client.Del(ctx, formatted...).Err()
}

func (r *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.formatKey(key)).Result()
	return n > 0, err
}

func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, r.formatKey(key)).Result()
}

func (r *RedisClient) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	return r.client.IncrBy(ctx, r.formatKey(key), value).Result()
}

func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, r.formatKey(key), ttl).Err()
}

func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, r.formatKey(key)).Result()
}

// --- Sets (tag indexes) ---

func (r *RedisClient) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return r.client.SAdd(ctx, r.formatKey(key), members...).Err()
}

func (r *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, r.formatKey(key)).Result()
}

func (r *RedisClient) SRem(ctx context.Context, key string, members ...interface{}) error {
	return r.client.SRem(ctx, r.formatKey(key), members...).Err()
}

// --- Sorted sets (priority queue, sliding window) ---

func (r *RedisClient) ZAdd(ctx context.Context, key string, members ...*redis.Z) error {
	return r.client.ZAdd(ctx, r.formatKey(key), members...).Err()
}

func (r *RedisClient) ZRem(ctx context.Context, key string, members ...interface{}) error {
	return r.client.ZRem(ctx, r.formatKey(key), members...).Err()
}

// ZPopMax pops the highest-score member(s) atomically, the same pop the
// coordinator's priority queue relies on: its scores are stored negated
// relative to now_ms - weight (as weight(priority) - now_ms), so the highest
// score is the highest-priority, oldest task; see coordinator package.
func (r *RedisClient) ZPopMax(ctx context.Context, key string, count int64) ([]redis.Z, error) {
	return r.client.ZPopMax(ctx, r.formatKey(key), count).Result()
}

func (r *RedisClient) ZRemRangeByScore(ctx context.Context, key string, min, max string) error {
	return r.client.ZRemRangeByScore(ctx, r.formatKey(key), min, max).Err()
}

func (r *RedisClient) ZCard(ctx context.Context, key string) (int64, error) {
	return r.client.ZCard(ctx, r.formatKey(key)).Result()
}

func (r *RedisClient) ZCount(ctx context.Context, key string, min, max string) (int64, error) {
	return r.client.ZCount(ctx, r.formatKey(key), min, max).Result()
}

// --- Lua scripts (atomic check-and-act) ---

// Eval runs a Lua script against namespaced keys. Callers format keys with
// FormatKey before passing them so the script operates inside the client's
// namespace just like every other method on this type.
func (r *RedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return r.client.Eval(ctx, script, keys, args...).Result()
}

// FormatKey exposes the namespacing rule to callers building Lua key lists.
func (r *RedisClient) FormatKey(key string) string {
	return r.formatKey(key)
}

// --- Pub/sub (event bus) ---

func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return r.client.Publish(ctx, r.formatKey(channel), message).Err()
}

func (r *RedisClient) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	formatted := make([]string, len(channels))
	for i, c := range channels {
		formatted[i] = r.formatKey(c)
	}
	return r.client.Subscribe(ctx, formatted...)
}

func (r *RedisClient) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	formatted := make([]string, len(patterns))
	for i, p := range patterns {
		formatted[i] = r.formatKey(p)
	}
	return r.client.PSubscribe(ctx, formatted...)
}

// --- Pipeline ---

func (r *RedisClient) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

// --- Health check ---

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// --- Standard Redis DB allocation ---

const (
	RedisDBTaskStore    = 0
	RedisDBCache        = 1
	RedisDBCoordinator  = 2
	RedisDBLearning     = 3
	RedisDBEventBus     = 4

	RedisDBReservedStart = 5
	RedisDBReservedEnd   = 15
)

// IsReservedDB returns true if the DB number is reserved for future extensions.
func IsReservedDB(db int) bool {
	return db >= RedisDBReservedStart && db <= RedisDBReservedEnd
}

// GetRedisDBName returns a human-readable name for the Redis DB.
func GetRedisDBName(db int) string {
	switch db {
	case RedisDBTaskStore:
		return "Task Store"
	case RedisDBCache:
		return "Result Cache"
	case RedisDBCoordinator:
		return "Coordinator"
	case RedisDBLearning:
		return "Learning"
	case RedisDBEventBus:
		return "Event Bus"
	default:
		if IsReservedDB(db) {
			return fmt.Sprintf("Reserved DB %d", db)
		}
		return fmt.Sprintf("DB %d", db)
	}
}
