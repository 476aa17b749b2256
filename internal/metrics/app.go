package metrics

import (
	"time"

	"github.com/lingualens/lingualens/internal/observability"
)

// Gateway and server metric names.
const (
	GatewayCallsTotal   = "gateway_calls_total"
	GatewayCallDuration = "gateway_call_duration_ms"
	UpstreamErrorsTotal = "gateway_upstream_errors_total"
	CacheSweptTotal     = "cache_swept_entries_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
)

// RecordGatewayCall records one gateway call. source is "cache", "upstream",
// "denied" or "error".
func RecordGatewayCall(endpoint, source string, duration time.Duration) {
	tags := map[string]string{"endpoint": endpoint, "source": source}
	counter(GatewayCallsTotal, tags)
	histogram(GatewayCallDuration, duration, tags)
}

// RecordUpstreamError records a failed call to the NLP service.
func RecordUpstreamError(endpoint, errorType string) {
	counter(UpstreamErrorsTotal, map[string]string{"endpoint": endpoint, "error_type": errorType})
}

// RecordCacheSweep records entries removed by an expiry sweep.
func RecordCacheSweep(removed int) {
	if removed <= 0 || observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(CacheSweptTotal, float64(removed), nil)
}

// RecordHealthCheck records one health checker run.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}

// Emitters are no-ops until observability.InitMetrics has run.

func counter(name string, labels map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(name, 1, labels)
}

func histogram(name string, d time.Duration, labels map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Histogram(name, d, labels)
}
