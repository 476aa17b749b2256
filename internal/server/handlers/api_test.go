package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/client"
	"github.com/lingualens/lingualens/internal/core/engine"
	apperrors "github.com/lingualens/lingualens/internal/errors"
)

type stubNLP struct {
	calls     atomic.Int32
	analyzeFn func(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error)
}

func (s *stubNLP) Analyze(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error) {
	s.calls.Add(1)
	if s.analyzeFn != nil {
		return s.analyzeFn(ctx, req)
	}
	return json.RawMessage(`{"toxicity":{"toxic":0.9}}`), nil
}

func (s *stubNLP) Translate(ctx context.Context, req core.TranslateRequest) (json.RawMessage, error) {
	s.calls.Add(1)
	return json.RawMessage(`{"translated_text":"hola"}`), nil
}

type stubStats struct {
	stats core.Stats
}

func (s *stubStats) Get(context.Context) (core.Stats, error) { return s.stats, nil }
func (s *stubStats) Reset(context.Context) error {
	s.stats = core.Stats{}
	return nil
}

type testAPI struct {
	*API
	now time.Time
}

func (a *testAPI) clock() time.Time { return a.now }

func newTestAPI(t *testing.T, policies map[string]engine.RateLimit, nlp *stubNLP) (*testAPI, http.Handler) {
	t.Helper()
	ta := &testAPI{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	clock := ta.clock

	registry, err := engine.NewRegistry(policies, clock)
	require.NoError(t, err)

	api := &API{
		Gateway: &engine.Gateway{
			Registry: registry,
			Cache:    engine.NewResponseCache(engine.NewMemoryBackend(), time.Hour, clock, nil),
			Client:   nlp,
			Clock:    clock,
		},
		Registry:   registry,
		Cache:      engine.NewResponseCache(engine.NewMemoryBackend(), time.Hour, clock, nil),
		Stats:      &stubStats{stats: core.Stats{AnalyzedCount: 4, ToxicCount: 1}},
		Superseder: engine.NewSuperseder(),
	}

	ta.API = api

	r := chi.NewRouter()
	r.Post("/v1/analyze", api.Analyze)
	r.Post("/v1/translate", api.Translate)
	r.Get("/v1/rate-limits", api.RateLimits)
	r.Get("/v1/rate-limits/{policy}", api.PolicyRateLimits)
	r.Delete("/v1/rate-limits", api.ResetRateLimits)
	r.Delete("/v1/rate-limits/{policy}", api.ResetRateLimits)
	r.Post("/v1/cache/clean", api.CleanCache)
	r.Get("/v1/stats", api.GetStats)
	r.Delete("/v1/stats", api.ResetStats)
	return ta, r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorDetail {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAnalyzeCachesAndAdmits(t *testing.T) {
	nlp := &stubNLP{}
	_, h := newTestAPI(t, nil, nlp)

	rec := do(t, h, http.MethodPost, "/v1/analyze", `{"text":"hello","compact_mode":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "29", rec.Header().Get("X-RateLimit-Remaining"))

	var outcome engine.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.False(t, outcome.FromCache)
	assert.JSONEq(t, `{"toxicity":{"toxic":0.9}}`, string(outcome.Data))

	rec = do(t, h, http.MethodPost, "/v1/analyze", `{"compact_mode":true,"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), nlp.calls.Load())
}

func TestAnalyzeRateLimited(t *testing.T) {
	nlp := &stubNLP{}
	_, h := newTestAPI(t, map[string]engine.RateLimit{
		"analyze": {RequestsPerWindow: 1, WindowDuration: time.Minute},
	}, nlp)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/analyze", `{"text":"one"}`).Code)

	rec := do(t, h, http.MethodPost, "/v1/analyze", `{"text":"two"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	detail := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeRateLimited, detail.Code)
	assert.Equal(t, "Rate limit exceeded. Please wait 60 seconds before trying again. (0/1 requests remaining)", detail.Message)
	assert.Equal(t, int32(1), nlp.calls.Load())
}

func TestAnalyzeInvalidInput(t *testing.T) {
	_, h := newTestAPI(t, nil, &stubNLP{})

	rec := do(t, h, http.MethodPost, "/v1/analyze", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodPost, "/v1/analyze", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranslate(t *testing.T) {
	_, h := newTestAPI(t, nil, &stubNLP{})

	rec := do(t, h, http.MethodPost, "/v1/translate", `{"text":"hello","target_lang":"es"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, rec.Body.String(), "hola")
}

func TestUpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Upstream429", &client.APIError{StatusCode: 429, Detail: "slow down", RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, apperrors.CodeRateLimited},
		{"Upstream500", &client.APIError{StatusCode: 500, Detail: "boom"}, http.StatusBadGateway, apperrors.CodeExternalService},
		{"Timeout", client.ErrTimeout, http.StatusGatewayTimeout, apperrors.CodeTimeout},
		{"Unavailable", client.ErrUnavailable, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
		{"InvalidResponse", client.ErrInvalidResponse, http.StatusBadGateway, apperrors.CodeExternalService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nlp := &stubNLP{analyzeFn: func(context.Context, core.AnalyzeRequest) (json.RawMessage, error) {
				return nil, tt.err
			}}
			_, h := newTestAPI(t, nil, nlp)

			rec := do(t, h, http.MethodPost, "/v1/analyze", `{"text":"hello"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestSessionSupersedesInFlightCall(t *testing.T) {
	started := make(chan struct{})
	nlp := &stubNLP{analyzeFn: func(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error) {
		if req.Text == "first" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return json.RawMessage(`{"ok":true}`), nil
	}}
	_, h := newTestAPI(t, nil, nlp)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"text":"first"}`))
		req.Header.Set(SessionHeader, "tab-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		first <- rec
	}()
	<-started

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"text":"second"}`))
	req.Header.Set(SessionHeader, "tab-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	superseded := <-first
	assert.Equal(t, apperrors.StatusClientClosedRequest, superseded.Code)
	assert.Equal(t, apperrors.CodeCanceled, decodeError(t, superseded).Code)
}

func TestRateLimitRoutes(t *testing.T) {
	_, h := newTestAPI(t, nil, &stubNLP{})
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/analyze", `{"text":"hello"}`).Code)

	rec := do(t, h, http.MethodGet, "/v1/rate-limits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all RateLimitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Policies, 3)

	rec = do(t, h, http.MethodGet, "/v1/rate-limits/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analyze RateLimitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analyze))
	require.Len(t, analyze.Policies, 1)
	assert.Equal(t, 29, analyze.Policies[0].Remaining)
	assert.Equal(t, 1, analyze.Policies[0].Used)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/rate-limits/bogus", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/rate-limits/bogus", "").Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/v1/rate-limits/analyze", "").Code)
	rec = do(t, h, http.MethodGet, "/v1/rate-limits/analyze", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analyze))
	assert.Equal(t, 30, analyze.Policies[0].Remaining)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/v1/rate-limits", "").Code)
}

func TestRateLimitResetSingleKey(t *testing.T) {
	_, h := newTestAPI(t, map[string]engine.RateLimit{
		"analyze": {RequestsPerWindow: 2, WindowDuration: time.Minute},
	}, &stubNLP{})

	rec := do(t, h, http.MethodPost, "/v1/analyze", `{"text":"one"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	rec = do(t, h, http.MethodPost, "/v1/analyze", `{"text":"two"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do(t, h, http.MethodDelete, "/v1/rate-limits/analyze?key=/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset":["analyze"],"key":"/analyze"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/analyze", `{"text":"three"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/rate-limits/bogus?key=/analyze", "").Code)
}

func TestCacheAndStatsRoutes(t *testing.T) {
	api, h := newTestAPI(t, nil, &stubNLP{})
	api.Cache.Set(context.Background(), "/analyze:stale", map[string]bool{"ok": true}, time.Minute)
	api.Cache.Set(context.Background(), "/analyze:fresh", map[string]bool{"ok": true}, time.Hour)
	api.now = api.now.Add(2 * time.Minute)

	rec := do(t, h, http.MethodPost, "/v1/cache/clean", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"analyzed_count":4,"toxic_count":1}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/v1/stats", "")
	assert.JSONEq(t, `{"analyzed_count":0,"toxic_count":0}`, rec.Body.String())

	api.Stats = nil
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/stats", "").Code)
}
