package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lingualens/lingualens/internal/core"
)

// ErrUnknownPolicy is returned when a policy name is not registered.
var ErrUnknownPolicy = errors.New("unknown rate limit policy")

// DefaultPolicies provides the per-policy defaults.
var DefaultPolicies = map[string]RateLimit{
	core.PolicyAnalyze:   {RequestsPerWindow: 30, WindowDuration: time.Minute},
	core.PolicyTranslate: {RequestsPerWindow: 20, WindowDuration: time.Minute},
	core.PolicyExtension: {RequestsPerWindow: 100, WindowDuration: time.Minute},
}

// Registry owns one limiter per quota policy.
type Registry struct {
	policies map[string]RateLimit
	limiters map[string]*RateLimiter
}

// NewRegistry validates every policy and builds its limiter.
func NewRegistry(policies map[string]RateLimit, clock Clock) (*Registry, error) {
	if len(policies) == 0 {
		policies = DefaultPolicies
	}

	reg := &Registry{
		policies: make(map[string]RateLimit, len(policies)),
		limiters: make(map[string]*RateLimiter, len(policies)),
	}
	for name, limit := range policies {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty policy name", ErrInvalidPolicy)
		}
		limiter, err := NewRateLimiter(limit, clock)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		reg.policies[name] = limit
		reg.limiters[name] = limiter
	}
	return reg, nil
}

// PolicyFor maps an endpoint path to its policy name.
func PolicyFor(endpoint string) string {
	switch {
	case strings.Contains(endpoint, string(core.EndpointAnalyze)):
		return core.PolicyAnalyze
	case strings.Contains(endpoint, string(core.EndpointTranslate)):
		return core.PolicyTranslate
	default:
		return core.PolicyExtension
	}
}

// ForEndpoint returns the policy name and limiter that govern endpoint.
func (r *Registry) ForEndpoint(endpoint string) (string, *RateLimiter, error) {
	policy := PolicyFor(endpoint)
	limiter, ok := r.limiters[policy]
	if !ok {
		return policy, nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
	return policy, limiter, nil
}

// Limiter returns the limiter for a policy.
func (r *Registry) Limiter(policy string) (*RateLimiter, bool) {
	limiter, ok := r.limiters[policy]
	return limiter, ok
}

// Policies returns the registered policy names, sorted.
func (r *Registry) Policies() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot reports status for every key of every policy. Idle policies
// produce a single row with an empty key.
func (r *Registry) Snapshot() []core.Status {
	var rows []core.Status
	for _, name := range r.Policies() {
		rows = append(rows, r.PolicyStatus(name)...)
	}
	return rows
}

// PolicyStatus reports status rows for one policy.
func (r *Registry) PolicyStatus(policy string) []core.Status {
	limiter, ok := r.limiters[policy]
	if !ok {
		return nil
	}

	keys := limiter.Keys()
	if len(keys) == 0 {
		status := limiter.GetStatus("")
		status.Key = ""
		status.Policy = policy
		return []core.Status{status}
	}

	rows := make([]core.Status, 0, len(keys))
	for _, key := range keys {
		status := limiter.GetStatus(key)
		status.Policy = policy
		rows = append(rows, status)
	}
	return rows
}

// Reset clears one policy's limiter.
func (r *Registry) Reset(policy string) error {
	limiter, ok := r.limiters[policy]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
	limiter.ResetAll()
	return nil
}

// ResetKey clears one endpoint key of a policy's limiter.
func (r *Registry) ResetKey(policy, key string) error {
	limiter, ok := r.limiters[policy]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
	limiter.Reset(key)
	return nil
}

// ResetAll clears every limiter.
func (r *Registry) ResetAll() {
	for _, limiter := range r.limiters {
		limiter.ResetAll()
	}
}

// ApplyOverrides merges per-policy request overrides (per minute) into a copy of policies.
func ApplyOverrides(policies map[string]RateLimit, overrides map[string]int) map[string]RateLimit {
	merged := copyPolicies(policies)
	for name, value := range overrides {
		name = strings.TrimSpace(name)
		if name == "" || value <= 0 {
			continue
		}
		merged[name] = RateLimit{
			RequestsPerWindow: value,
			WindowDuration:    time.Minute,
		}
	}
	return merged
}

// ApplySafetyMargin scales request limits by a ratio in (0, 1], flooring to at least one.
func ApplySafetyMargin(policies map[string]RateLimit, margin float64) map[string]RateLimit {
	adjusted := copyPolicies(policies)
	if margin <= 0 || margin > 1 {
		return adjusted
	}
	for name, limit := range adjusted {
		scaled := int(math.Floor(float64(limit.RequestsPerWindow) * margin))
		if scaled < 1 {
			scaled = 1
		}
		limit.RequestsPerWindow = scaled
		adjusted[name] = limit
	}
	return adjusted
}

func copyPolicies(policies map[string]RateLimit) map[string]RateLimit {
	if len(policies) == 0 {
		policies = DefaultPolicies
	}
	out := make(map[string]RateLimit, len(policies))
	for name, limit := range policies {
		out[name] = limit
	}
	return out
}
