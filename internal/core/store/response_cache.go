package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lingualens/lingualens/internal/core/engine"
)

var _ engine.CacheBackend = (*Store)(nil)

// GetEntry loads a cached response. Missing keys return nil without error.
func (s *Store) GetEntry(ctx context.Context, key string) (*engine.CacheEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		value    string
		storedAt int64
		ttlMS    int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT value, stored_at, ttl_ms FROM response_cache WHERE cache_key = ?
	`, key).Scan(&value, &storedAt, &ttlMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	return &engine.CacheEntry{
		Value:    json.RawMessage(value),
		StoredAt: time.UnixMilli(storedAt).UTC(),
		TTL:      time.Duration(ttlMS) * time.Millisecond,
	}, nil
}

// PutEntry upserts a cached response.
func (s *Store) PutEntry(ctx context.Context, key string, entry engine.CacheEntry) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO response_cache (cache_key, endpoint, value, stored_at, ttl_ms, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			endpoint = excluded.endpoint,
			value = excluded.value,
			stored_at = excluded.stored_at,
			ttl_ms = excluded.ttl_ms,
			expires_at = excluded.expires_at
	`, key, endpointOf(key), string(entry.Value),
		entry.StoredAt.UnixMilli(), entry.TTL.Milliseconds(), entry.ExpiresAt().UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a cached response.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// SweepExpired deletes entries whose expiry is at or before now.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep cache: %w", err)
	}
	return int(affected), nil
}

// endpointOf extracts the endpoint prefix from "endpoint:hash" keys.
func endpointOf(key string) string {
	if idx := strings.LastIndex(key, ":"); idx > 0 {
		return key[:idx]
	}
	return key
}
