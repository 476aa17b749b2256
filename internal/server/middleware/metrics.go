package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lingualens/lingualens/internal/observability"
	"go.uber.org/zap"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// EndpointPattern returns the chi route pattern, or a coarse bucket for
// unrouted paths, so metric labels stay low-cardinality.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if routePattern := rctx.RoutePattern(); routePattern != "" {
			return routePattern
		}
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/health"):
		return "/health/*"
	case strings.HasPrefix(path, "/metrics"):
		return path
	case path == "/version", path == "/":
		return path
	case strings.HasPrefix(path, "/v1/rate-limits"):
		return "/v1/rate-limits/*"
	case strings.HasPrefix(path, "/v1/"):
		return path
	default:
		return "/unknown"
	}
}

// RequestMetrics emits per-request telemetry and a completion log line.
// Gateway responses are labelled with their X-Cache outcome so cache hits
// can be told apart from upstream calls.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := EndpointPattern(r)
		status := strconv.Itoa(wrapped.statusCode)
		cacheOutcome := strings.ToLower(wrapped.Header().Get("X-Cache"))
		if cacheOutcome == "" {
			cacheOutcome = "none"
		}

		if sys := observability.TelemetrySystem; sys != nil {
			labels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}
			sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}

			_ = sys.Counter("http_requests_total", 1, map[string]string{
				"method": r.Method, "endpoint": endpoint, "status": status, "cache": cacheOutcome,
			})
			_ = sys.Histogram("http_request_duration_ms", duration, labels)
			_ = sys.Gauge("http_request_size_bytes", float64(max(r.ContentLength, 0)), sizeLabels)
			_ = sys.Gauge("http_response_size_bytes", float64(wrapped.bytesWritten), sizeLabels)
			if class := errorClass(wrapped.statusCode); class != "" {
				_ = sys.Counter("http_errors_total", 1, map[string]string{
					"method": r.Method, "endpoint": endpoint, "status": status, "error_type": class,
				})
			}
		}

		if logger := observability.ServerLogger; logger != nil {
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", wrapped.statusCode),
				zap.String("cache", cacheOutcome),
				zap.Duration("duration", duration),
				zap.Int64("response_size", wrapped.bytesWritten),
				zap.String("requestID", GetRequestID(r.Context())),
			}
			if wrapped.statusCode >= 500 {
				logger.Warn("HTTP request failed", fields...)
			} else {
				logger.Info("HTTP request completed", fields...)
			}
		}
	})
}

// errorClass buckets failing statuses; 429 is kept apart from other client
// errors since it is the gateway's normal back-pressure signal.
func errorClass(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}
