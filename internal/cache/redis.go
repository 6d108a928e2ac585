// Package cache provides the optional Redis-backed dedup cache. The engine
// stays fully functional when Redis is not configured; every method on a nil
// *RedisCache is a safe no-op.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Metrics tracks cache performance.
type Metrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	errors prometheus.Counter
	sets   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func globalMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			hits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_cache_hits_total",
				Help: "Total number of cache hits",
			}),
			misses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_cache_misses_total",
				Help: "Total number of cache misses",
			}),
			errors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_cache_errors_total",
				Help: "Total number of cache errors",
			}),
			sets: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_cache_sets_total",
				Help: "Total number of cache sets",
			}),
		}
	})
	return metrics
}

// Config defines the Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	PoolSize  int
}

// RedisCache implements a small distributed cache used for escalation dedup
// marks.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	metrics   *Metrics
}

// NewRedisCache creates and verifies a Redis cache instance.
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		metrics:   globalMetrics(),
	}, nil
}

func (rc *RedisCache) key(k string) string {
	if rc.keyPrefix == "" {
		return k
	}
	return rc.keyPrefix + ":" + k
}

// SetNX stores the value only when the key is absent and returns whether the
// write happened. A false result means an equivalent entry already exists.
func (rc *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if rc == nil {
		return true, nil
	}
	ok, err := rc.client.SetNX(ctx, rc.key(key), value, ttl).Result()
	if err != nil {
		rc.metrics.errors.Inc()
		return false, fmt.Errorf("cache: setnx %s: %w", key, err)
	}
	if ok {
		rc.metrics.sets.Inc()
	} else {
		rc.metrics.hits.Inc()
	}
	return ok, nil
}

// Set stores the value unconditionally with the given TTL.
func (rc *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if rc == nil {
		return nil
	}
	if err := rc.client.Set(ctx, rc.key(key), value, ttl).Err(); err != nil {
		rc.metrics.errors.Inc()
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	rc.metrics.sets.Inc()
	return nil
}

// Get returns the value for key, or "" and false when absent.
func (rc *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	if rc == nil {
		return "", false, nil
	}
	val, err := rc.client.Get(ctx, rc.key(key)).Result()
	if err == redis.Nil {
		rc.metrics.misses.Inc()
		return "", false, nil
	}
	if err != nil {
		rc.metrics.errors.Inc()
		return "", false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	rc.metrics.hits.Inc()
	return val, true, nil
}

// Delete removes a key. Missing keys are not an error.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if rc == nil {
		return nil
	}
	if err := rc.client.Del(ctx, rc.key(key)).Err(); err != nil {
		rc.metrics.errors.Inc()
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (rc *RedisCache) Close() error {
	if rc == nil {
		return nil
	}
	return rc.client.Close()
}
