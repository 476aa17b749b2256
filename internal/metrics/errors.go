package metrics

import (
	"strconv"
)

// Error counter names.
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordError counts an error envelope written to a client.
func RecordError(errorCode string, httpStatus int) {
	counter(ErrorsTotalName, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic. endpoint is a route
// pattern, never a raw path.
func RecordPanic(endpoint string) {
	counter(PanicsTotalName, map[string]string{"endpoint": endpoint})
}

// RecordErrorByEndpoint counts an error against its route pattern.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	counter(ErrorsByEndpointName, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}
