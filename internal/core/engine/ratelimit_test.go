package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, max int, window time.Duration, clock *fakeClock) *RateLimiter {
	t.Helper()
	limiter, err := NewRateLimiter(RateLimit{RequestsPerWindow: max, WindowDuration: window}, clock.Now)
	require.NoError(t, err)
	return limiter
}

func TestNewRateLimiterRejectsInvalidPolicy(t *testing.T) {
	cases := []RateLimit{
		{RequestsPerWindow: 0, WindowDuration: time.Minute},
		{RequestsPerWindow: -1, WindowDuration: time.Minute},
		{RequestsPerWindow: 5, WindowDuration: 0},
		{RequestsPerWindow: 5, WindowDuration: -time.Second},
	}
	for _, limit := range cases {
		_, err := NewRateLimiter(limit, nil)
		require.ErrorIs(t, err, ErrInvalidPolicy)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 3, time.Second, clock)

	for i := 0; i < 3; i++ {
		limiter.RecordRequest("analyze")
	}

	clock.Advance(500 * time.Millisecond)
	require.False(t, limiter.CheckLimit("analyze").Allowed)

	clock.Advance(501 * time.Millisecond)
	decision := limiter.CheckLimit("analyze")
	require.True(t, decision.Allowed)
	require.Equal(t, 3, decision.Remaining)
	require.Nil(t, decision.RetryAfter)
}

func TestRateLimiterWindowBoundaryEvicts(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 1, time.Second, clock)

	limiter.RecordRequest("analyze")
	clock.Advance(999 * time.Millisecond)
	require.False(t, limiter.CheckLimit("analyze").Allowed)

	clock.Advance(time.Millisecond)
	require.True(t, limiter.CheckLimit("analyze").Allowed)
}

func TestRateLimiterRetryAfter(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 3, time.Second, clock)

	for i := 0; i < 3; i++ {
		limiter.RecordRequest("analyze")
	}
	clock.Advance(200 * time.Millisecond)

	decision := limiter.CheckLimit("analyze")
	require.False(t, decision.Allowed)
	require.NotNil(t, decision.RetryAfter)
	assert.Equal(t, 1, *decision.RetryAfter)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, 3, decision.Limit)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 1, time.Minute, clock)

	limiter.RecordRequest("analyze")
	require.False(t, limiter.CheckLimit("analyze").Allowed)

	decision := limiter.CheckLimit("translate")
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)
}

func TestRateLimiterCheckLimitIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 5, time.Minute, clock)
	limiter.RecordRequest("analyze")

	for i := 0; i < 10; i++ {
		require.Equal(t, 4, limiter.CheckLimit("analyze").Remaining)
	}
}

func TestRateLimiterScenario(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 2, time.Minute, clock)

	// A at t=0
	require.True(t, limiter.CheckLimit("analyze").Allowed)
	limiter.RecordRequest("analyze")
	require.Equal(t, 1, limiter.GetStatus("analyze").Remaining)

	// B at t=100ms
	clock.Advance(100 * time.Millisecond)
	require.True(t, limiter.CheckLimit("analyze").Allowed)
	limiter.RecordRequest("analyze")
	require.Equal(t, 0, limiter.GetStatus("analyze").Remaining)

	// C at t=200ms
	clock.Advance(100 * time.Millisecond)
	denied := limiter.CheckLimit("analyze")
	require.False(t, denied.Allowed)
	require.Equal(t, 60, denied.RetryAfterSeconds())

	// D at t=60001ms, A has left the window
	clock.Advance(59801 * time.Millisecond)
	decision := limiter.CheckLimit("analyze")
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)
}

func TestRateLimiterGetStatus(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	limiter := newTestLimiter(t, 3, time.Minute, clock)

	status := limiter.GetStatus("analyze")
	require.Equal(t, 3, status.Remaining)
	require.Equal(t, 0, status.Used)
	require.Nil(t, status.ResetAt)

	limiter.RecordRequest("analyze")
	clock.Advance(10 * time.Second)
	limiter.RecordRequest("analyze")

	status = limiter.GetStatus("analyze")
	require.Equal(t, 1, status.Remaining)
	require.Equal(t, 2, status.Used)
	require.NotNil(t, status.ResetAt)
	require.Equal(t, start.Add(time.Minute), *status.ResetAt)
}

func TestRateLimiterReset(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 1, time.Minute, clock)

	limiter.RecordRequest("analyze")
	limiter.RecordRequest("translate")
	limiter.Reset("analyze")
	require.True(t, limiter.CheckLimit("analyze").Allowed)
	require.False(t, limiter.CheckLimit("translate").Allowed)

	limiter.ResetAll()
	require.True(t, limiter.CheckLimit("translate").Allowed)
	require.Empty(t, limiter.Keys())
}

func TestRateLimiterTryAcquire(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 2, time.Minute, clock)

	first := limiter.TryAcquire("analyze")
	require.True(t, first.Allowed)
	require.Equal(t, 1, first.Remaining)

	second := limiter.TryAcquire("analyze")
	require.True(t, second.Allowed)
	require.Equal(t, 0, second.Remaining)

	third := limiter.TryAcquire("analyze")
	require.False(t, third.Allowed)
	require.Equal(t, 2, limiter.GetStatus("analyze").Used)
}

func TestRateLimiterTryAcquireConcurrent(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 10, time.Minute, clock)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire("analyze").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, admitted)
}

func TestRateLimiterBackoff(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 10, time.Minute, clock)

	limiter.Backoff("analyze", 30*time.Second)

	decision := limiter.CheckLimit("analyze")
	require.False(t, decision.Allowed)
	require.Equal(t, 30, decision.RetryAfterSeconds())

	status := limiter.GetStatus("analyze")
	require.NotNil(t, status.BackoffUntil)
	require.Equal(t, 0, status.Remaining)
	require.Equal(t, 0, status.Used)
	require.NotNil(t, status.ResetAt)
	require.Equal(t, *status.BackoffUntil, *status.ResetAt)

	clock.Advance(30 * time.Second)
	decision = limiter.CheckLimit("analyze")
	require.True(t, decision.Allowed)
	require.Equal(t, 10, decision.Remaining)

	status = limiter.GetStatus("analyze")
	require.Nil(t, status.BackoffUntil)
	require.Equal(t, 10, status.Remaining)
}

func TestRateLimiterBackoffOutlastsWindowReset(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 10, time.Minute, clock)

	limiter.RecordRequest("analyze")
	limiter.Backoff("analyze", 2*time.Minute)

	status := limiter.GetStatus("analyze")
	require.Equal(t, 1, status.Used)
	require.Equal(t, 0, status.Remaining)
	require.Equal(t, clock.Now().Add(2*time.Minute), *status.ResetAt)
}

func TestRateLimiterResetClearsBackoff(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, 10, time.Minute, clock)

	limiter.Backoff("analyze", time.Hour)
	limiter.Reset("analyze")
	require.True(t, limiter.CheckLimit("analyze").Allowed)
}
