package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"

	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/client"
	"github.com/lingualens/lingualens/internal/core/engine"
	apperrors "github.com/lingualens/lingualens/internal/errors"
	"github.com/lingualens/lingualens/internal/metrics"
)

// SessionHeader identifies a caller session; a newer request on the same
// session cancels the older one.
const SessionHeader = "X-Session-ID"

const maxRequestBody = 64 << 10

// Gateway is the subset of engine.Gateway the handlers need.
type Gateway interface {
	Analyze(ctx context.Context, req core.AnalyzeRequest) (*engine.Outcome, error)
	Translate(ctx context.Context, req core.TranslateRequest) (*engine.Outcome, error)
}

// StatsStore reads and clears usage counters.
type StatsStore interface {
	Get(ctx context.Context) (core.Stats, error)
	Reset(ctx context.Context) error
}

// API serves the /v1 routes.
type API struct {
	Gateway    Gateway
	Registry   *engine.Registry
	Cache      *engine.ResponseCache
	Stats      StatsStore
	Superseder *engine.Superseder
}

// RateLimitsResponse lists quota status rows.
type RateLimitsResponse struct {
	Policies []core.Status `json:"policies"`
}

// Analyze handles POST /v1/analyze.
func (a *API) Analyze(w http.ResponseWriter, r *http.Request) {
	var req core.AnalyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.serve(w, r, core.EndpointAnalyze, func(ctx context.Context) (*engine.Outcome, error) {
		return a.Gateway.Analyze(ctx, req)
	})
}

// Translate handles POST /v1/translate.
func (a *API) Translate(w http.ResponseWriter, r *http.Request) {
	var req core.TranslateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.serve(w, r, core.EndpointTranslate, func(ctx context.Context) (*engine.Outcome, error) {
		return a.Gateway.Translate(ctx, req)
	})
}

func (a *API) serve(w http.ResponseWriter, r *http.Request, endpoint core.Endpoint, call func(context.Context) (*engine.Outcome, error)) {
	ctx, release := a.Superseder.Begin(r.Context(), r.Header.Get(SessionHeader))
	defer release()

	start := time.Now()
	outcome, err := call(ctx)
	if err != nil {
		metrics.RecordGatewayCall(string(endpoint), errorSource(err), time.Since(start))
		respondWithError(w, r, GatewayErrorEnvelope(r.Context(), err))
		return
	}

	source := "upstream"
	cacheHeader := "MISS"
	if outcome.FromCache {
		source = "cache"
		cacheHeader = "HIT"
	}
	metrics.RecordGatewayCall(string(endpoint), source, time.Since(start))

	w.Header().Set("X-Cache", cacheHeader)
	if outcome.Decision != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(outcome.Decision.Limit))
		// The decision predates recording this call.
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, outcome.Decision.Remaining-1)))
	}
	writeJSON(w, http.StatusOK, outcome)
}

// RateLimits handles GET /v1/rate-limits.
func (a *API) RateLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RateLimitsResponse{Policies: a.Registry.Snapshot()})
}

// PolicyRateLimits handles GET /v1/rate-limits/{policy}.
func (a *API) PolicyRateLimits(w http.ResponseWriter, r *http.Request) {
	policy := chi.URLParam(r, "policy")
	rows := a.Registry.PolicyStatus(policy)
	if rows == nil {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), engine.ErrUnknownPolicy, "unknown rate limit policy: "+policy))
		return
	}
	writeJSON(w, http.StatusOK, RateLimitsResponse{Policies: rows})
}

// ResetRateLimits handles DELETE /v1/rate-limits and /v1/rate-limits/{policy}.
// An optional ?key= on the policy route clears a single endpoint key.
func (a *API) ResetRateLimits(w http.ResponseWriter, r *http.Request) {
	policy := chi.URLParam(r, "policy")
	if policy == "" {
		a.Registry.ResetAll()
		writeJSON(w, http.StatusOK, map[string]any{"reset": a.Registry.Policies()})
		return
	}

	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		if err := a.Registry.ResetKey(policy, key); err != nil {
			respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "unknown rate limit policy: "+policy))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reset": []string{policy}, "key": key})
		return
	}

	if err := a.Registry.Reset(policy); err != nil {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "unknown rate limit policy: "+policy))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": []string{policy}})
}

// CleanCache handles POST /v1/cache/clean.
func (a *API) CleanCache(w http.ResponseWriter, r *http.Request) {
	removed := a.Cache.CleanExpired(r.Context())
	metrics.RecordCacheSweep(removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// GetStats handles GET /v1/stats.
func (a *API) GetStats(w http.ResponseWriter, r *http.Request) {
	if a.Stats == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("stats are disabled"))
		return
	}
	stats, err := a.Stats.Get(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to read stats"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ResetStats handles DELETE /v1/stats.
func (a *API) ResetStats(w http.ResponseWriter, r *http.Request) {
	if a.Stats == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("stats are disabled"))
		return
	}
	if err := a.Stats.Reset(r.Context()); err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to reset stats"))
		return
	}
	writeJSON(w, http.StatusOK, core.Stats{})
}

// GatewayErrorEnvelope maps gateway and client errors to API envelopes.
func GatewayErrorEnvelope(ctx context.Context, err error) *gferrors.ErrorEnvelope {
	var (
		limited *engine.RateLimitedError
		apiErr  *client.APIError
	)

	switch {
	case errors.As(err, &limited):
		return apperrors.NewRateLimitedError(limited.Error(),
			limited.Decision.RetryAfterSeconds(), limited.Decision.Remaining, limited.Decision.Limit)
	case errors.Is(err, client.ErrEmptyText), errors.Is(err, client.ErrTextTooLong):
		return apperrors.WrapInvalidInput(ctx, err, err.Error())
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(ctx, apperrors.CodeCanceled, err, "request canceled or superseded")
	case errors.Is(err, client.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapTimeout(ctx, err, client.ErrTimeout.Error())
	case errors.As(err, &apiErr):
		if apiErr.RateLimited() {
			retry := int((apiErr.RetryAfter + time.Second - 1) / time.Second)
			return apperrors.NewRateLimitedError(apiErr.Error(), retry, 0, 0)
		}
		env := apperrors.WrapExternalService(ctx, err, apiErr.Error())
		return env.WithDetails(map[string]interface{}{"upstream_status": apiErr.StatusCode})
	case errors.Is(err, client.ErrUnavailable):
		return apperrors.Wrap(ctx, apperrors.CodeServiceUnavailable, err, err.Error())
	case errors.Is(err, client.ErrInvalidResponse), errors.Is(err, client.ErrNoTranslation):
		return apperrors.WrapExternalService(ctx, err, err.Error())
	default:
		return apperrors.WrapInternal(ctx, err, "gateway call failed")
	}
}

func errorSource(err error) string {
	var limited *engine.RateLimitedError
	if errors.As(err, &limited) {
		return "denied"
	}
	return "error"
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(dst); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object"))
		return false
	}
	return true
}
