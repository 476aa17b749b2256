package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// fallbackMetricsPort is reported when an ephemeral exporter's address
// cannot be parsed.
const fallbackMetricsPort = 9090

var (
	// TelemetrySystem receives counters and histograms from internal/metrics.
	// Nil means metrics are disabled and emitters no-op.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves TelemetrySystem in Prometheus text format.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the gofulmen Prometheus exporter on port (0 picks a free
// port) and installs TelemetrySystem. namespace prefixes every metric name
// and defaults to serviceName.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return err
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return err
	}

	metricsPort = boundPort(exporter.GetAddr(), port)
	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// StopMetrics stops the exporter and clears the telemetry system.
func StopMetrics() error {
	TelemetrySystem = nil
	if PrometheusExporter == nil {
		return nil
	}
	err := PrometheusExporter.Stop()
	PrometheusExporter = nil
	return err
}

// GetMetricsPort returns the port the exporter bound to; /metrics proxies to it.
func GetMetricsPort() int {
	return metricsPort
}

func boundPort(addr string, requested int) int {
	_, raw, err := net.SplitHostPort(addr)
	if err == nil {
		if port, err := strconv.Atoi(raw); err == nil {
			return port
		}
	}
	if requested == 0 {
		return fallbackMetricsPort
	}
	return requested
}
