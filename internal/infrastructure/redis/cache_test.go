package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/avatarctic/cloud-storage-provider/configs"
)

func TestRedisCache_Namespacing(t *testing.T) {
	assert.Equal(t, "blobcache:blobmeta:a", NewRedisCache(nil, "blobcache").namespaced("blobmeta:a"))
	assert.Equal(t, "plain", NewRedisCache(nil, "").namespaced("plain"))
}

func TestRedisCache_ErrorsAreCounted(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	cache := NewRedisCache(client, "test")

	before := testutil.ToFloat64(GetCacheOperations().WithLabelValues("get", "error"))
	_, ok, err := cache.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, before+1, testutil.ToFloat64(GetCacheOperations().WithLabelValues("get", "error")))

	require.Error(t, cache.Set(context.Background(), "k", []byte("v"), time.Minute))
	require.Error(t, cache.Delete(context.Background(), "k"))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: "1", DialTimeout: 100 * time.Millisecond}
	_, err := NewRedisClient(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestOptions(t *testing.T) {
	opts := options(&config.RedisConfig{Host: "cache", Port: "6380", DB: 2, PoolSize: 7})
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
}
