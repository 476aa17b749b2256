package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lingualens/lingualens/internal/core/engine"
)

// DefaultKeyPrefix namespaces response cache keys in a shared Redis.
const DefaultKeyPrefix = "lingualens:cache:"

// RedisBackend stores cache entries in Redis with native expiry.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to the Redis instance at url (redis://...).
func NewRedisBackend(url, prefix string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisBackendFromClient(redis.NewClient(opt), prefix), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) GetEntry(ctx context.Context, key string) (*engine.CacheEntry, error) {
	raw, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry engine.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (b *RedisBackend) PutEntry(ctx context.Context, key string, entry engine.CacheEntry) error {
	ttl := expiryFor(entry)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := b.client.Set(ctx, b.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) DeleteEntry(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SweepExpired is a no-op; Redis drops keys on expiry.
func (b *RedisBackend) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// expiryFor is the PX expiry for a freshly written entry. It uses the
// entry's own TTL so a ResponseCache running on an injected clock still gets
// the intended lifetime; StoredAt may be far from wall time.
func expiryFor(entry engine.CacheEntry) time.Duration {
	return entry.TTL
}
