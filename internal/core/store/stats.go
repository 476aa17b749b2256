package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lingualens/lingualens/internal/core"
)

const (
	statsAnalyzedKey = "stats.analyzed_count"
	statsToxicKey    = "stats.toxic_count"
)

// Incrementer is implemented by KVs that can add to a counter atomically.
type Incrementer interface {
	Increment(ctx context.Context, key string, delta int64) (int64, error)
}

// Stats keeps analysis counters in a KV.
type Stats struct {
	KV KV

	mu sync.Mutex
}

// NewStats returns counters backed by kv.
func NewStats(kv KV) *Stats {
	return &Stats{KV: kv}
}

// RecordAnalysis counts one analysis, and one toxic result when toxic is set.
func (s *Stats) RecordAnalysis(ctx context.Context, toxic bool) error {
	if s == nil || s.KV == nil {
		return errors.New("stats store is not configured")
	}
	if err := s.add(ctx, statsAnalyzedKey, 1); err != nil {
		return err
	}
	if toxic {
		return s.add(ctx, statsToxicKey, 1)
	}
	return nil
}

// Get returns the current counters.
func (s *Stats) Get(ctx context.Context) (core.Stats, error) {
	if s == nil || s.KV == nil {
		return core.Stats{}, errors.New("stats store is not configured")
	}

	analyzed, err := s.read(ctx, statsAnalyzedKey)
	if err != nil {
		return core.Stats{}, err
	}
	toxic, err := s.read(ctx, statsToxicKey)
	if err != nil {
		return core.Stats{}, err
	}
	return core.Stats{AnalyzedCount: analyzed, ToxicCount: toxic}, nil
}

// Reset zeroes both counters.
func (s *Stats) Reset(ctx context.Context) error {
	if s == nil || s.KV == nil {
		return errors.New("stats store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.KV.Delete(ctx, statsAnalyzedKey); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	if err := s.KV.Delete(ctx, statsToxicKey); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	return nil
}

func (s *Stats) add(ctx context.Context, key string, delta int64) error {
	if inc, ok := s.KV.(Incrementer); ok {
		if _, err := inc.Increment(ctx, key, delta); err != nil {
			return fmt.Errorf("increment %s: %w", key, err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	return s.KV.Set(ctx, key, strconv.FormatInt(current+delta, 10))
}

func (s *Stats) read(ctx context.Context, key string) (int64, error) {
	value, ok, err := s.KV.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is corrupt: %w", key, err)
	}
	return parsed, nil
}

// Increment adds delta to an integer value in a single statement.
func (s *Store) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CAST(CAST(kv.value AS INTEGER) + ? AS TEXT),
			updated_at = excluded.updated_at
	`, key, strconv.FormatInt(delta, 10), time.Now().UTC().Unix(), delta)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}

	value, _, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}
