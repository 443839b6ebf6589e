package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

var cacheOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_cache_operations_total",
		Help: "Redis cache operations by operation and result",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(cacheOperations)
}

// GetCacheOperations returns the cache operation counter.
func GetCacheOperations() *prometheus.CounterVec {
	return cacheOperations
}

// RedisCache implements ports.Cache using a Redis client.
type RedisCache struct {
	r redis.Cmdable
	// key prefix namespacing this cache's entries
	prefix string
}

// NewRedisCache creates a new Redis-backed cache.
func NewRedisCache(r redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{r: r, prefix: prefix}
}

var _ ports.Cache = (*RedisCache)(nil)

func (c *RedisCache) namespaced(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func observe(op string, err error) {
	switch {
	case err == nil:
		cacheOperations.WithLabelValues(op, "ok").Inc()
	case errors.Is(err, redis.Nil):
		cacheOperations.WithLabelValues(op, "miss").Inc()
	default:
		cacheOperations.WithLabelValues(op, "error").Inc()
	}
}

// Get returns ok=false without an error when the key is absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.r.Get(ctx, c.namespaced(key)).Bytes()
	observe("get", err)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.r.Set(ctx, c.namespaced(key), value, ttl).Err()
	observe("set", err)
	return err
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	err := c.r.Del(ctx, c.namespaced(key)).Err()
	observe("delete", err)
	return err
}
