package core

import (
	"encoding/json"
	"time"
)

// Endpoint identifies a remote API path.
type Endpoint string

const (
	EndpointAnalyze   Endpoint = "/analyze"
	EndpointTranslate Endpoint = "/translate"
	EndpointHealth    Endpoint = "/health"
)

// Quota policy names.
const (
	PolicyAnalyze   = "analyze"
	PolicyTranslate = "translate"
	PolicyExtension = "extension"
)

// Decision is the admission result for a single key.
type Decision struct {
	Allowed    bool `json:"allowed"`
	RetryAfter *int `json:"retry_after"`
	Remaining  int  `json:"remaining"`
	Limit      int  `json:"limit"`
}

// RetryAfterSeconds returns the retry hint or zero when unset.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter == nil {
		return 0
	}
	return *d.RetryAfter
}

// Status reports quota usage without admitting anything.
type Status struct {
	Policy       string     `json:"policy,omitempty"`
	Key          string     `json:"key,omitempty"`
	Remaining    int        `json:"remaining"`
	Limit        int        `json:"limit"`
	Used         int        `json:"used"`
	ResetAt      *time.Time `json:"reset_at"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
}

// AnalyzeRequest is the payload for text analysis.
type AnalyzeRequest struct {
	Text        string `json:"text"`
	CompactMode bool   `json:"compact_mode"`
}

// TranslateRequest is the payload for translation.
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// Stats holds usage counters.
type Stats struct {
	AnalyzedCount int64 `json:"analyzed_count"`
	ToxicCount    int64 `json:"toxic_count"`
}

// HistoryEntry is a stored analysis.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Settings are user preferences persisted in the key-value store.
type Settings struct {
	Enabled           bool    `json:"enabled"`
	BlurToxic         bool    `json:"blur_toxic"`
	ToxicityThreshold float64 `json:"toxicity_threshold"`
	CompactMode       bool    `json:"compact_mode"`
	SourceLang        string  `json:"source_lang"`
	TargetLang        string  `json:"target_lang"`
}

// DefaultSettings mirrors the values used before anything is saved.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		BlurToxic:         true,
		ToxicityThreshold: 0.7,
		CompactMode:       true,
		SourceLang:        "auto",
		TargetLang:        "en",
	}
}

// Batch item outcomes.
const (
	BatchStatusSuccess = "success"
	BatchStatusError   = "error"
)

// BatchItem is one analyzed line of a batch run.
type BatchItem struct {
	Index     int             `json:"index"`
	Text      string          `json:"text"`
	Status    string          `json:"status"`
	FromCache bool            `json:"from_cache,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BatchResult collects a sequential batch run.
type BatchResult struct {
	Items       []BatchItem `json:"items"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	CompletedAt time.Time   `json:"completed_at"`
}
