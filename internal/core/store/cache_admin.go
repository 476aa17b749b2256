package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheRow describes one stored response for listings.
type CacheRow struct {
	Key       string    `json:"key"`
	Endpoint  string    `json:"endpoint"`
	Size      int       `json:"size"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheQuery selects cached responses.
type CacheQuery struct {
	All      bool
	Endpoint string
	Prefix   string
}

func (q CacheQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Endpoint) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --endpoint, or --prefix")
}

func (q CacheQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if endpoint := strings.TrimSpace(q.Endpoint); endpoint != "" {
		return "WHERE endpoint = ?", []any{endpoint}, nil
	}
	return "WHERE cache_key LIKE ?", []any{strings.TrimSpace(q.Prefix) + "%"}, nil
}

func (s *Store) ListCache(ctx context.Context, q CacheQuery) ([]CacheRow, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT cache_key, endpoint, LENGTH(value), stored_at, expires_at
		FROM response_cache
		%s
		ORDER BY endpoint, stored_at DESC
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []CacheRow{}
	for rows.Next() {
		var (
			row       CacheRow
			storedAt  int64
			expiresAt int64
		)
		if err := rows.Scan(&row.Key, &row.Endpoint, &row.Size, &storedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan cache: %w", err)
		}
		row.StoredAt = time.UnixMilli(storedAt).UTC()
		row.ExpiresAt = time.UnixMilli(expiresAt).UTC()
		entries = append(entries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	return entries, nil
}

func (s *Store) CountCache(ctx context.Context, q CacheQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM response_cache %s
	`, where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	return count, nil
}

func (s *Store) ClearCache(ctx context.Context, q CacheQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM response_cache %s`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return affected, nil
}
