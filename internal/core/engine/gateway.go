package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/client"
)

// DefaultToxicityThreshold marks an analysis as toxic when any score exceeds it.
const DefaultToxicityThreshold = 0.7

const historyTextLimit = 200

// NLPClient performs the remote calls.
type NLPClient interface {
	Analyze(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error)
	Translate(ctx context.Context, req core.TranslateRequest) (json.RawMessage, error)
}

// StatsRecorder counts completed analyses.
type StatsRecorder interface {
	RecordAnalysis(ctx context.Context, toxic bool) error
}

// HistoryRecorder keeps recent results.
type HistoryRecorder interface {
	AddHistory(ctx context.Context, entry core.HistoryEntry) error
}

// QuotaObserver receives admission and cache outcomes.
type QuotaObserver interface {
	ObserveDecision(policy string, allowed bool)
	ObserveCache(endpoint string, hit bool)
	ObserveUpstream429(policy string)
}

// RateLimitedError is returned when the local quota denies a call.
type RateLimitedError struct {
	Policy   string
	Endpoint string
	Decision core.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before trying again. (%d/%d requests remaining)",
		e.Decision.RetryAfterSeconds(), e.Decision.Remaining, e.Decision.Limit)
}

// RetryAfter returns the wait as a duration.
func (e *RateLimitedError) RetryAfter() time.Duration {
	return time.Duration(e.Decision.RetryAfterSeconds()) * time.Second
}

// Outcome is the result of a gateway call.
type Outcome struct {
	Endpoint  core.Endpoint   `json:"endpoint"`
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"from_cache"`
	Decision  *core.Decision  `json:"decision,omitempty"`
}

// Gateway runs every API call through the cache and the limiter.
type Gateway struct {
	Registry          *Registry
	Cache             *ResponseCache
	Client            NLPClient
	Stats             StatsRecorder
	History           HistoryRecorder
	Observer          QuotaObserver
	Logger            *logging.Logger
	ToxicityThreshold float64
	// Threshold, when set, is consulted on every analysis so a changed
	// setting applies without a restart. ToxicityThreshold is the fallback
	// when it fails.
	Threshold         ThresholdSource
	Clock             Clock
}

// ThresholdSource returns the current toxicity threshold.
type ThresholdSource func(ctx context.Context) (float64, error)

// Analyze runs text analysis.
func (g *Gateway) Analyze(ctx context.Context, req core.AnalyzeRequest) (*Outcome, error) {
	text, err := client.SanitizeText(req.Text)
	if err != nil {
		return nil, err
	}
	req.Text = text

	outcome, err := g.call(ctx, core.EndpointAnalyze, req, func(ctx context.Context) (json.RawMessage, error) {
		return g.Client.Analyze(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if !outcome.FromCache {
		g.recordAnalysis(ctx, req.Text, outcome.Data)
	}
	return outcome, nil
}

// Translate runs translation.
func (g *Gateway) Translate(ctx context.Context, req core.TranslateRequest) (*Outcome, error) {
	text, err := client.SanitizeText(req.Text)
	if err != nil {
		return nil, err
	}
	req.Text = text
	req = client.NormalizeTranslate(req)

	outcome, err := g.call(ctx, core.EndpointTranslate, req, func(ctx context.Context) (json.RawMessage, error) {
		return g.Client.Translate(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if !outcome.FromCache {
		g.addHistory(ctx, "translate", req.Text, outcome.Data)
	}
	return outcome, nil
}

func (g *Gateway) call(ctx context.Context, endpoint core.Endpoint, params any, fetch func(context.Context) (json.RawMessage, error)) (*Outcome, error) {
	if g == nil || g.Registry == nil || g.Client == nil {
		return nil, errors.New("gateway is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := GenerateKey(string(endpoint), params)
	if entry, ok := g.Cache.Get(ctx, key); ok {
		g.observeCache(endpoint, true)
		return &Outcome{Endpoint: endpoint, Data: entry.Value, FromCache: true}, nil
	}
	g.observeCache(endpoint, false)

	policy, limiter, err := g.Registry.ForEndpoint(string(endpoint))
	if err != nil {
		return nil, err
	}

	decision := limiter.CheckLimit(string(endpoint))
	g.observeDecision(policy, decision.Allowed)
	if !decision.Allowed {
		return nil, &RateLimitedError{Policy: policy, Endpoint: string(endpoint), Decision: decision}
	}

	data, err := fetch(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.RateLimited() {
			limiter.Backoff(string(endpoint), apiErr.RetryAfter)
			if g.Observer != nil {
				g.Observer.ObserveUpstream429(policy)
			}
		}
		return nil, err
	}

	limiter.RecordRequest(string(endpoint))
	g.Cache.Set(ctx, key, data, 0)

	return &Outcome{Endpoint: endpoint, Data: data, Decision: &decision}, nil
}

func (g *Gateway) recordAnalysis(ctx context.Context, text string, data json.RawMessage) {
	if g.Stats != nil {
		if err := g.Stats.RecordAnalysis(ctx, IsToxic(data, g.threshold(ctx))); err != nil {
			g.warn("failed to update stats", err)
		}
	}
	g.addHistory(ctx, "analyze", text, data)
}

func (g *Gateway) addHistory(ctx context.Context, kind, text string, data json.RawMessage) {
	if g.History == nil {
		return
	}
	entry := core.HistoryEntry{
		ID:        uuid.NewString(),
		Type:      kind,
		Text:      truncateRunes(text, historyTextLimit),
		Result:    data,
		CreatedAt: g.now(),
	}
	if err := g.History.AddHistory(ctx, entry); err != nil {
		g.warn("failed to save history", err)
	}
}

// IsToxic reports whether any toxicity score in an analysis exceeds threshold.
func IsToxic(data json.RawMessage, threshold float64) bool {
	var payload struct {
		Toxicity map[string]json.RawMessage `json:"toxicity"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}
	for _, raw := range payload.Toxicity {
		var score float64
		if err := json.Unmarshal(raw, &score); err != nil {
			continue
		}
		if score > threshold {
			return true
		}
	}
	return false
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func (g *Gateway) threshold(ctx context.Context) float64 {
	if g.Threshold != nil {
		current, err := g.Threshold(ctx)
		if err == nil && current > 0 {
			return current
		}
		if err != nil {
			g.warn("failed to read toxicity threshold", err)
		}
	}
	if g.ToxicityThreshold > 0 {
		return g.ToxicityThreshold
	}
	return DefaultToxicityThreshold
}

func (g *Gateway) observeCache(endpoint core.Endpoint, hit bool) {
	if g.Observer != nil {
		g.Observer.ObserveCache(string(endpoint), hit)
	}
}

func (g *Gateway) observeDecision(policy string, allowed bool) {
	if g.Observer != nil {
		g.Observer.ObserveDecision(policy, allowed)
	}
}

func (g *Gateway) warn(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Warn(msg, zap.Error(err))
	}
}

func (g *Gateway) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UTC()
}
