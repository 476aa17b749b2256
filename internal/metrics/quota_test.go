package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaMetricsCounts(t *testing.T) {
	m := NewQuotaMetrics("lingualens")

	m.ObserveDecision("analyze", true)
	m.ObserveDecision("analyze", true)
	m.ObserveDecision("analyze", false)
	m.ObserveCache("/analyze", true)
	m.ObserveCache("/translate", false)
	m.ObserveUpstream429("translate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("analyze", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("analyze", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("/analyze", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("/translate", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upstream429.WithLabelValues("translate")))
}

func TestQuotaMetricsHandler(t *testing.T) {
	m := NewQuotaMetrics("lingualens")
	m.ObserveDecision("extension", false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lingualens_rate_limit_decisions_total{outcome="denied",policy="extension"} 1`)
}

func TestQuotaMetricsNilSafe(t *testing.T) {
	var m *QuotaMetrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("analyze", true)
		m.ObserveCache("/analyze", false)
		m.ObserveUpstream429("analyze")
	})
}

func TestRecordersWithoutTelemetry(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordGatewayCall("/analyze", "cache", 0)
		RecordUpstreamError("/analyze", "timeout")
		RecordCacheSweep(3)
		RecordError("RATE_LIMITED", 429)
		RecordErrorByEndpoint("/v1/analyze", "RATE_LIMITED")
		RecordPanic("/v1/translate")
		RecordHealthCheck("store", false, 0)
		SetServerStartTime(0)
	})
}
