package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lingualens/lingualens/internal/core/engine"
)

// QuotaMetrics counts limiter decisions and cache lookups on a private
// registry. It satisfies engine.QuotaObserver.
type QuotaMetrics struct {
	registry *prometheus.Registry

	Decisions    *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	Upstream429  *prometheus.CounterVec
}

var _ engine.QuotaObserver = (*QuotaMetrics)(nil)

// NewQuotaMetrics registers the quota collectors on a fresh registry.
func NewQuotaMetrics(namespace string) *QuotaMetrics {
	m := &QuotaMetrics{
		registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limit checks by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "response_cache_lookups_total",
				Help:      "Response cache lookups by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		Upstream429: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_rate_limited_total",
				Help:      "429 responses received from the NLP service",
			},
			[]string{"policy"},
		),
	}

	m.registry.MustRegister(m.Decisions, m.CacheLookups, m.Upstream429)
	return m
}

func (m *QuotaMetrics) ObserveDecision(policy string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(policy, outcome).Inc()
}

func (m *QuotaMetrics) ObserveCache(endpoint string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(endpoint, result).Inc()
}

func (m *QuotaMetrics) ObserveUpstream429(policy string) {
	if m == nil {
		return
	}
	m.Upstream429.WithLabelValues(policy).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *QuotaMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the quota collectors in the Prometheus text format.
func (m *QuotaMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
