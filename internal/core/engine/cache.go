package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// DefaultCacheTTL is used when a cache is built without an explicit TTL.
const DefaultCacheTTL = time.Hour

// CacheEntry wraps a memoized response. A JSON null value is a hit, not a miss.
type CacheEntry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// ExpiresAt returns when the entry stops being served.
func (e CacheEntry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Live reports whether now-storedAt < ttl.
func (e CacheEntry) Live(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// CacheBackend stores cache entries. Implementations may fail; ResponseCache
// turns every failure into a miss or a no-op.
type CacheBackend interface {
	GetEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutEntry(ctx context.Context, key string, entry CacheEntry) error
	DeleteEntry(ctx context.Context, key string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ResponseCache memoizes API responses with a TTL.
type ResponseCache struct {
	backend CacheBackend
	ttl     time.Duration
	clock   Clock
	logger  *logging.Logger
}

// NewResponseCache builds a cache over backend. A nil backend uses memory;
// a non-positive ttl uses DefaultCacheTTL.
func NewResponseCache(backend CacheBackend, ttl time.Duration, clock Clock, logger *logging.Logger) *ResponseCache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{backend: backend, ttl: ttl, clock: clock, logger: logger}
}

// TTL returns the default entry lifetime.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// GenerateKey derives a deterministic key from endpoint and params. Params are
// serialized with sorted object keys, so property order never matters.
func GenerateKey(endpoint string, params any) string {
	canonical, err := canonicalJSON(params)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%#v", params))
	}
	sum := sha256.Sum256(canonical)
	return endpoint + ":" + hex.EncodeToString(sum[:])
}

func canonicalJSON(params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	// UseNumber keeps integers beyond 2^53 distinct; float64 would merge them.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Get returns the entry for key while it is within its TTL.
func (c *ResponseCache) Get(ctx context.Context, key string) (*CacheEntry, bool) {
	if c == nil {
		return nil, false
	}

	entry, err := c.backend.GetEntry(ctx, key)
	if err != nil {
		c.debug("cache get failed", key, err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if !entry.Live(c.now()) {
		if err := c.backend.DeleteEntry(ctx, key); err != nil {
			c.debug("cache evict failed", key, err)
		}
		return nil, false
	}
	return entry, true
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *ResponseCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	raw, err := encodeValue(value)
	if err != nil {
		c.debug("cache encode failed", key, err)
		return
	}

	entry := CacheEntry{Value: raw, StoredAt: c.now(), TTL: ttl}
	if err := c.backend.PutEntry(ctx, key, entry); err != nil {
		c.debug("cache set failed", key, err)
	}
}

// Delete removes key.
func (c *ResponseCache) Delete(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.backend.DeleteEntry(ctx, key); err != nil {
		c.debug("cache delete failed", key, err)
	}
}

// CleanExpired removes every expired entry and returns how many were dropped.
func (c *ResponseCache) CleanExpired(ctx context.Context) int {
	if c == nil {
		return 0
	}
	removed, err := c.backend.SweepExpired(ctx, c.now())
	if err != nil {
		c.debug("cache sweep failed", "", err)
		return 0
	}
	return removed
}

func encodeValue(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("null"), nil
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("cache value is not valid JSON")
		}
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

func (c *ResponseCache) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now().UTC()
}

func (c *ResponseCache) debug(msg, key string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(msg, zap.String("key", key), zap.Error(err))
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]CacheEntry)}
}

func (m *MemoryBackend) GetEntry(_ context.Context, key string) (*CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryBackend) PutEntry(_ context.Context, key string, entry CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry
	return nil
}

func (m *MemoryBackend) DeleteEntry(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) SweepExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if !entry.Live(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, live or not.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
