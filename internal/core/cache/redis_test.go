package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/core/engine"
)

func setupRedis(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("LINGUALENS_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	backend := NewRedisBackendFromClient(client, "lingualens:test:"+t.Name()+":")
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestNewRedisBackendRejectsBadURL(t *testing.T) {
	_, err := NewRedisBackend("not a url", "")
	require.Error(t, err)

	backend, err := NewRedisBackend("redis://localhost:6379/0", "")
	require.NoError(t, err)
	require.Equal(t, DefaultKeyPrefix, backend.prefix)
	require.NoError(t, backend.Close())
}

func TestExpiryForIgnoresWallClock(t *testing.T) {
	past := engine.CacheEntry{StoredAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), TTL: time.Minute}
	require.Equal(t, time.Minute, expiryFor(past))

	future := engine.CacheEntry{StoredAt: time.Now().Add(24 * time.Hour), TTL: 5 * time.Second}
	require.Equal(t, 5*time.Second, expiryFor(future))

	require.LessOrEqual(t, expiryFor(engine.CacheEntry{}), time.Duration(0))
}

func TestRedisBackendFakeClockEntryIsStored(t *testing.T) {
	backend := setupRedis(t)
	stored := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := engine.NewResponseCache(backend, time.Minute, func() time.Time { return stored }, nil)
	ctx := context.Background()

	cache.Set(ctx, "k", map[string]int{"a": 1}, 0)

	ttl, err := backend.client.PTTL(ctx, backend.prefix+"k").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisBackendUnavailableIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	backend := NewRedisBackendFromClient(client, "")
	defer func() { _ = backend.Close() }()

	cache := engine.NewResponseCache(backend, time.Minute, nil, nil)
	ctx := context.Background()

	cache.Set(ctx, "k", map[string]int{"a": 1}, 0)
	_, ok := cache.Get(ctx, "k")
	require.False(t, ok)
}

func TestRedisBackendRoundTrip(t *testing.T) {
	backend := setupRedis(t)
	cache := engine.NewResponseCache(backend, time.Minute, nil, nil)
	ctx := context.Background()

	cache.Set(ctx, "k", map[string]int{"a": 1}, 0)
	entry, ok := cache.Get(ctx, "k")
	require.True(t, ok)

	var got map[string]int
	require.NoError(t, json.Unmarshal(entry.Value, &got))
	require.Equal(t, map[string]int{"a": 1}, got)

	cache.Set(ctx, "null", nil, 0)
	entry, ok = cache.Get(ctx, "null")
	require.True(t, ok)
	require.Equal(t, json.RawMessage("null"), entry.Value)

	cache.Delete(ctx, "k")
	_, ok = cache.Get(ctx, "k")
	require.False(t, ok)
	require.Equal(t, 0, cache.CleanExpired(ctx))
}
