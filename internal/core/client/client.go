package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lingualens/lingualens/internal/core"
)

const (
	// DefaultBaseURL is the API address used when none is configured.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds every API call.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 4 << 20
)

// Client calls the remote NLP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	Clock      func() time.Time
}

// New returns a client for baseURL with the given timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, Timeout: timeout}
}

// HealthStatus is the decoded /health response.
type HealthStatus struct {
	Status  string          `json:"status"`
	Raw     json.RawMessage `json:"-"`
	Latency time.Duration   `json:"-"`
}

// Analyze posts text for language, sentiment and toxicity analysis.
func (c *Client) Analyze(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error) {
	text, err := SanitizeText(req.Text)
	if err != nil {
		return nil, err
	}
	req.Text = text

	return c.postJSON(ctx, core.EndpointAnalyze, req)
}

// Translate posts text for translation. Empty languages default to auto and en.
func (c *Client) Translate(ctx context.Context, req core.TranslateRequest) (json.RawMessage, error) {
	text, err := SanitizeText(req.Text)
	if err != nil {
		return nil, err
	}
	req.Text = text
	req = NormalizeTranslate(req)

	body, err := c.postJSON(ctx, core.EndpointTranslate, req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		TranslatedText string `json:"translated_text"`
		Translation    string `json:"translation"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if payload.TranslatedText == "" && payload.Translation == "" {
		return nil, ErrNoTranslation
	}
	return body, nil
}

// NormalizeTranslate fills in default languages.
func NormalizeTranslate(req core.TranslateRequest) core.TranslateRequest {
	req.SourceLang = strings.TrimSpace(req.SourceLang)
	req.TargetLang = strings.TrimSpace(req.TargetLang)
	if req.SourceLang == "" {
		req.SourceLang = "auto"
	}
	if req.TargetLang == "" {
		req.TargetLang = "en"
	}
	return req
}

// Health queries the API health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	start := c.now()
	body, err := c.do(ctx, http.MethodGet, core.EndpointHealth, nil)
	if err != nil {
		return nil, err
	}

	status := &HealthStatus{Raw: body, Latency: c.now().Sub(start)}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return status, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint core.Endpoint, payload any) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, encoded)
}

func (c *Client) do(ctx context.Context, method string, endpoint core.Endpoint, body []byte) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.StatusCode, data),
			RetryAfter: retryAfterHeader(resp, c.now()),
		}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, ErrInvalidResponse
	}
	return json.RawMessage(data), nil
}

func (c *Client) transportError(parent context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func errorDetail(status int, body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch detail := payload.Detail.(type) {
		case string:
			if strings.TrimSpace(detail) != "" {
				return detail
			}
		case nil:
		default:
			if encoded, err := json.Marshal(detail); err == nil {
				return string(encoded)
			}
		}
	}
	return fmt.Sprintf("HTTP %d error", status)
}

func (c *Client) resolve(endpoint core.Endpoint) (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid api base url %q", base)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + string(endpoint)
	return parsed.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
