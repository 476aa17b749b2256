package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lingualens/lingualens/internal/core"
)

// ErrInvalidPolicy is returned when a limiter is built with non-positive parameters.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Clock returns the current time.
type Clock func() time.Time

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate reports whether the policy can back a limiter.
func (l RateLimit) Validate() error {
	if l.RequestsPerWindow <= 0 {
		return fmt.Errorf("%w: requests per window must be positive, got %d", ErrInvalidPolicy, l.RequestsPerWindow)
	}
	if l.WindowDuration <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidPolicy, l.WindowDuration)
	}
	return nil
}

// keyState is the admitted-call log for one key.
type keyState struct {
	Timestamps   []time.Time
	BackoffUntil *time.Time
	Last429At    *time.Time
}

// RateLimiter enforces a sliding-window limit per key.
//
// Each key keeps the timestamps of admitted calls. A timestamp counts while
// now-ts < window; stale timestamps are dropped on every access.
type RateLimiter struct {
	mu    sync.Mutex
	limit RateLimit
	clock Clock
	state map[string]*keyState
}

// NewRateLimiter builds a limiter for the given policy. A nil clock uses UTC wall time.
func NewRateLimiter(limit RateLimit, clock Clock) (*RateLimiter, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	return &RateLimiter{
		limit: limit,
		clock: clock,
		state: make(map[string]*keyState),
	}, nil
}

// Limit returns the limiter policy.
func (r *RateLimiter) Limit() RateLimit {
	return r.limit
}

// CheckLimit reports whether a call for key would be admitted now. It only
// purges expired timestamps and never records anything.
func (r *RateLimiter) CheckLimit(key string) core.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.check(key, r.now())
}

// RecordRequest appends the current time to the key's log.
func (r *RateLimiter) RecordRequest(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state := r.entry(key)
	state.Timestamps = append(state.Timestamps, now)
	r.purge(state, now)
}

// TryAcquire checks and records in one step. The returned decision reports
// the quota left after this call when admitted.
func (r *RateLimiter) TryAcquire(key string) core.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	decision := r.check(key, now)
	if !decision.Allowed {
		return decision
	}
	state := r.entry(key)
	state.Timestamps = append(state.Timestamps, now)
	decision.Remaining--
	return decision
}

// GetStatus reports usage for key. It never denies.
func (r *RateLimiter) GetStatus(key string) core.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	status := core.Status{
		Key:       key,
		Remaining: r.limit.RequestsPerWindow,
		Limit:     r.limit.RequestsPerWindow,
	}

	state, ok := r.state[key]
	if !ok {
		return status
	}
	r.purge(state, now)

	used := len(state.Timestamps)
	status.Used = used
	status.Remaining = max(0, r.limit.RequestsPerWindow-used)
	if used > 0 {
		resetAt := oldest(state.Timestamps).Add(r.limit.WindowDuration)
		status.ResetAt = &resetAt
	}
	if state.BackoffUntil != nil && now.Before(*state.BackoffUntil) {
		// Mirrors CheckLimit: nothing is admitted until the backoff ends.
		until := *state.BackoffUntil
		status.BackoffUntil = &until
		status.Remaining = 0
		if status.ResetAt == nil || until.After(*status.ResetAt) {
			status.ResetAt = &until
		}
	}
	return status
}

// Backoff applies a server-imposed pause to key, typically from a 429 Retry-After.
func (r *RateLimiter) Backoff(key string, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state := r.entry(key)
	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		if state.BackoffUntil == nil || until.After(*state.BackoffUntil) {
			state.BackoffUntil = &until
		}
	}
}

// Reset clears the log for one key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.state, key)
}

// ResetAll clears every key.
func (r *RateLimiter) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = make(map[string]*keyState)
}

// Keys lists keys that currently hold state, sorted.
func (r *RateLimiter) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.state))
	for key := range r.state {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *RateLimiter) check(key string, now time.Time) core.Decision {
	limit := r.limit.RequestsPerWindow
	state, ok := r.state[key]
	if !ok {
		return core.Decision{Allowed: true, Remaining: limit, Limit: limit}
	}
	r.purge(state, now)

	if state.BackoffUntil != nil {
		if now.Before(*state.BackoffUntil) {
			retry := ceilSeconds(state.BackoffUntil.Sub(now))
			return core.Decision{Allowed: false, RetryAfter: &retry, Remaining: 0, Limit: limit}
		}
		state.BackoffUntil = nil
	}

	count := len(state.Timestamps)
	if count >= limit {
		retry := ceilSeconds(oldest(state.Timestamps).Add(r.limit.WindowDuration).Sub(now))
		return core.Decision{Allowed: false, RetryAfter: &retry, Remaining: 0, Limit: limit}
	}

	return core.Decision{Allowed: true, Remaining: limit - count, Limit: limit}
}

func (r *RateLimiter) entry(key string) *keyState {
	state, ok := r.state[key]
	if !ok {
		state = &keyState{}
		r.state[key] = state
	}
	return state
}

// purge drops timestamps with now-ts >= window.
func (r *RateLimiter) purge(state *keyState, now time.Time) {
	valid := state.Timestamps[:0]
	for _, ts := range state.Timestamps {
		if now.Sub(ts) < r.limit.WindowDuration {
			valid = append(valid, ts)
		}
	}
	state.Timestamps = valid
}

func oldest(timestamps []time.Time) time.Time {
	first := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.Before(first) {
			first = ts
		}
	}
	return first
}

func (r *RateLimiter) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now().UTC()
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
