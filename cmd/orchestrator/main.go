// Command orchestrator wires the module's independent packages into a
// running service: a logger and telemetry provider, an adapter registry,
// a capability router, a resilience manager, a cache, a distributed
// coordinator, a learning tracker, and finally the execution and
// collaboration engines built on top of them.
//
// None of those packages import each other above the task/adapter/router
// level, so this file is the only place the full dependency graph is
// assembled. Redis-backed components (coordinator, cache) are used when
// REDIS_URL is set; otherwise the process falls back to in-memory
// equivalents, which is enough to run a single instance locally.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gomind-ai/orchestrator/adapter"
	"github.com/gomind-ai/orchestrator/cache"
	"github.com/gomind-ai/orchestrator/collaboration"
	"github.com/gomind-ai/orchestrator/coordinator"
	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/eventbus"
	"github.com/gomind-ai/orchestrator/execution"
	"github.com/gomind-ai/orchestrator/learning"
	"github.com/gomind-ai/orchestrator/resilience"
	"github.com/gomind-ai/orchestrator/router"
	"github.com/gomind-ai/orchestrator/task"
	"github.com/gomind-ai/orchestrator/telemetry"
	"github.com/gomind-ai/orchestrator/validator"
)

const serviceName = "gomind-orchestrator"

func main() {
	ctx := context.Background()

	logger := core.NewProductionLogger(core.DefaultLogConfig(), serviceName)

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:  serviceName,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	core.SetMetricsRegistry(telemetry.NewLogMetricsBridge(provider))

	bus := eventbus.New()
	registry := adapter.NewRegistry()

	redisClient, err := newRedisClientFromEnv(logger)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory cache and coordinator", map[string]interface{}{"error": err.Error()})
	}

	rt := router.New(registry)
	rt.AddStrategy(router.NewRuleBasedStrategy(routingTable()))
	rt.AddStrategy(router.NewComplexityStrategy(complexityThreshold, strongReasoningAdapter))
	rt.AddStrategy(router.NewPerformanceStrategy(fastAdapter))

	breakers := resilience.NewManager(resilience.DefaultCircuitBreakerConfig(), logger)

	var resultCache cache.Cache
	if redisClient != nil {
		resultCache = cache.NewRedisCache(redisClient)
	} else {
		resultCache = cache.NewMemoryCache(defaultCacheCapacity, defaultCacheCleanupInterval)
	}

	var coord coordinator.Coordinator
	if redisClient != nil {
		coord = coordinator.NewRedisCoordinator(redisClient, logger)
	} else {
		coord = coordinator.NewLocalCoordinator(logger)
	}

	tracker := learning.New(
		learning.WithEventBus(bus),
		learning.WithDefaultAdapter(fastAdapter),
	)

	engine := execution.New(registry, rt,
		execution.WithEventBus(bus),
		execution.WithLogger(logger),
		execution.WithTelemetry(provider),
		execution.WithCircuitBreakerManager(breakers),
		execution.WithRetryConfig(resilience.DefaultRetryConfig()),
		execution.WithLearningRecorder(tracker),
		execution.WithValidationCriteria(validator.DefaultCriteria()),
	)

	collab := collaboration.New(engine,
		collaboration.WithEventBus(bus),
		collaboration.WithLogger(logger),
	)

	_ = resultCache
	_ = coord
	_ = collab

	logger.Info("orchestrator assembled", map[string]interface{}{
		"redis_backed": redisClient != nil,
	})
}

// newRedisClientFromEnv builds the shared Redis client used by the cache
// and coordinator when REDIS_URL is configured. It is a single client on
// logical DB 2 (the coordinator's DB in core/redis_client.go's allocation),
// so the Redis-backed cache shares that DB with the coordinator rather than
// using the result-cache DB.
func newRedisClientFromEnv(logger core.Logger) (*core.RedisClient, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return nil, core.ErrInvalidConfiguration
	}
	return core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  url,
		DB:        2,
		Namespace: serviceName,
		Logger:    logger,
	})
}

// routingTable is the static task-kind -> adapter mapping consulted by
// RuleBasedStrategy, the highest-priority strategy, before the
// complexity/performance strategies get a say. The router does not consult
// the learning tracker.
func routingTable() map[task.Kind]adapter.ID {
	return map[task.Kind]adapter.ID{
		task.KindArchitecture:  strongReasoningAdapter,
		task.KindCodeReview:    strongReasoningAdapter,
		task.KindSearch:        fastAdapter,
		task.KindDocumentation: fastAdapter,
	}
}

const (
	strongReasoningAdapter adapter.ID = "deep-reasoner"
	fastAdapter            adapter.ID = "fast-responder"
	complexityThreshold               = 7

	defaultCacheCapacity        = 10_000
	defaultCacheCleanupInterval = 5 * time.Minute
)
