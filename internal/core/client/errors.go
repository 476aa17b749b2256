package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when the API does not answer within the client timeout.
	ErrTimeout = errors.New("request timeout - server took too long to respond")
	// ErrUnavailable is returned when no response was received at all.
	ErrUnavailable = errors.New("network error - check your connection and ensure the API server is running")
	// ErrInvalidResponse is returned for empty or malformed response bodies.
	ErrInvalidResponse = errors.New("invalid response from server")
	// ErrNoTranslation is returned when a translate response carries no text.
	ErrNoTranslation = errors.New("no translation received from server")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Detail     string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d error", e.StatusCode)
}

// RateLimited reports whether the API rejected the call with 429.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// retryAfterHeader parses Retry-After as delta seconds or an HTTP date.
func retryAfterHeader(resp *http.Response, now time.Time) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retry); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		if wait := parsed.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}
