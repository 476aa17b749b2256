package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/engine"
	"github.com/lingualens/lingualens/internal/core/store"
)

const previewLimit = 60

// OutcomeView flattens a gateway result into field/value rows.
func OutcomeView(outcome *engine.Outcome) View {
	if outcome == nil {
		return View{Header: []string{"Field", "Value"}}
	}

	source := "api"
	if outcome.FromCache {
		source = "cache"
	}

	view := View{
		Title:  fmt.Sprintf("%s (%s)", strings.TrimPrefix(string(outcome.Endpoint), "/"), source),
		Header: []string{"Field", "Value"},
		Rows:   FlattenJSON(outcome.Data),
		Data:   outcome,
	}
	if d := outcome.Decision; d != nil && !outcome.FromCache {
		view.Footer = fmt.Sprintf("%d/%d requests remaining", max(d.Remaining-1, 0), d.Limit)
	}
	return view
}

// BatchView renders one row per batch item with the headline analysis
// fields. Failed items keep their code and message in the last columns.
func BatchView(result *core.BatchResult) View {
	view := View{
		Title:  "Batch analysis",
		Header: []string{"#", "Text", "Language", "Sentiment", "Toxicity", "Profanity", "Status", "Error"},
	}
	if result == nil {
		return view
	}
	view.Data = result
	view.Footer = fmt.Sprintf("%d ok, %d failed", result.Succeeded, result.Failed)

	for _, item := range result.Items {
		summary := summarizeAnalysis(item.Result)
		status := item.Status
		if item.Code != "" {
			status = item.Code
		}
		view.Rows = append(view.Rows, []string{
			strconv.Itoa(item.Index),
			item.Text,
			summary.language,
			summary.sentiment,
			summary.toxicity,
			summary.profanity,
			status,
			item.Error,
		})
	}
	return view
}

type analysisSummary struct {
	language, sentiment, toxicity, profanity string
}

func summarizeAnalysis(data json.RawMessage) analysisSummary {
	summary := analysisSummary{language: "N/A", sentiment: "N/A", toxicity: "N/A", profanity: "N/A"}
	if len(data) == 0 {
		return summary
	}
	var payload struct {
		Language *struct {
			Name string `json:"name"`
		} `json:"language"`
		Sentiment *struct {
			Label string `json:"label"`
		} `json:"sentiment"`
		Toxicity  map[string]json.RawMessage `json:"toxicity"`
		Profanity *struct {
			HasProfanity bool `json:"has_profanity"`
		} `json:"profanity"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return summary
	}

	if payload.Language != nil && payload.Language.Name != "" {
		summary.language = payload.Language.Name
	}
	if payload.Sentiment != nil && payload.Sentiment.Label != "" {
		summary.sentiment = payload.Sentiment.Label
	}
	if payload.Profanity != nil {
		summary.profanity = "No"
		if payload.Profanity.HasProfanity {
			summary.profanity = "Yes"
		}
	}

	highest, found := 0.0, false
	for _, raw := range payload.Toxicity {
		var score float64
		if json.Unmarshal(raw, &score) != nil {
			continue
		}
		if !found || score > highest {
			highest, found = score, true
		}
	}
	if found {
		summary.toxicity = fmt.Sprintf("%.2f%%", highest*100)
	}
	return summary
}

// StatusView renders quota rows.
func StatusView(rows []core.Status, now time.Time) View {
	view := View{
		Title:  "Rate limits",
		Header: []string{"Policy", "Key", "Used", "Remaining", "Limit", "Resets In", "Backoff"},
		Data:   rows,
	}
	for _, row := range rows {
		key := row.Key
		if key == "" {
			key = "-"
		}
		view.Rows = append(view.Rows, []string{
			row.Policy,
			key,
			strconv.Itoa(row.Used),
			strconv.Itoa(row.Remaining),
			strconv.Itoa(row.Limit),
			untilLabel(row.ResetAt, now),
			untilLabel(row.BackoffUntil, now),
		})
	}
	return view
}

// StatsView renders usage counters.
func StatsView(stats core.Stats) View {
	rate := "0%"
	if stats.AnalyzedCount > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(stats.ToxicCount)*100/float64(stats.AnalyzedCount))
	}
	return View{
		Title:  "Usage",
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Analyzed", strconv.FormatInt(stats.AnalyzedCount, 10)},
			{"Toxic", strconv.FormatInt(stats.ToxicCount, 10)},
			{"Toxic rate", rate},
		},
		Data: stats,
	}
}

// HistoryView lists history entries newest first.
func HistoryView(entries []core.HistoryEntry) View {
	view := View{
		Title:  "History",
		Header: []string{"ID", "Type", "Created", "Text"},
		Data:   entries,
	}
	for _, entry := range entries {
		view.Rows = append(view.Rows, []string{
			entry.ID,
			entry.Type,
			entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			preview(entry.Text),
		})
	}
	view.Footer = fmt.Sprintf("%d entries", len(entries))
	return view
}

// HistoryEntryView shows one entry with its flattened result.
func HistoryEntryView(entry core.HistoryEntry) View {
	rows := [][]string{
		{"id", entry.ID},
		{"type", entry.Type},
		{"created_at", entry.CreatedAt.Format(time.RFC3339)},
		{"text", entry.Text},
	}
	for _, row := range FlattenJSON(entry.Result) {
		rows = append(rows, []string{"result." + row[0], row[1]})
	}
	return View{Title: "History entry", Header: []string{"Field", "Value"}, Rows: rows, Data: entry}
}

// SettingsView renders settings sorted by name.
func SettingsView(values map[string]string) View {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	view := View{Title: "Settings", Header: []string{"Setting", "Value"}, Data: values}
	for _, name := range names {
		view.Rows = append(view.Rows, []string{name, values[name]})
	}
	return view
}

// CacheView lists stored responses.
func CacheView(rows []store.CacheRow, now time.Time) View {
	view := View{
		Title:  "Response cache",
		Header: []string{"Endpoint", "Key", "Size", "Stored", "Expires In"},
		Data:   rows,
	}
	for _, row := range rows {
		expires := row.ExpiresAt
		view.Rows = append(view.Rows, []string{
			row.Endpoint,
			shortKey(row.Key),
			strconv.Itoa(row.Size),
			row.StoredAt.Local().Format("2006-01-02 15:04:05"),
			untilLabel(&expires, now),
		})
	}
	view.Footer = fmt.Sprintf("%d entries", len(rows))
	return view
}

// FlattenJSON turns a JSON document into sorted path/value pairs.
func FlattenJSON(raw json.RawMessage) [][]string {
	if len(raw) == 0 {
		return nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return [][]string{{"raw", string(raw)}}
	}

	var rows [][]string
	flatten("", doc, &rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows
}

func flatten(prefix string, value any, rows *[][]string) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 && prefix != "" {
			*rows = append(*rows, []string{prefix, "{}"})
		}
		for key, child := range v {
			flatten(joinPath(prefix, key), child, rows)
		}
	case []any:
		if len(v) == 0 {
			*rows = append(*rows, []string{prefixOr(prefix), "[]"})
		}
		for i, child := range v {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), child, rows)
		}
	case float64:
		*rows = append(*rows, []string{prefixOr(prefix), strconv.FormatFloat(v, 'f', -1, 64)})
	case nil:
		*rows = append(*rows, []string{prefixOr(prefix), "null"})
	default:
		*rows = append(*rows, []string{prefixOr(prefix), fmt.Sprint(v)})
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func prefixOr(prefix string) string {
	if prefix == "" {
		return "value"
	}
	return prefix
}

func untilLabel(at *time.Time, now time.Time) string {
	if at == nil || !at.After(now) {
		return "-"
	}
	return at.Sub(now).Round(time.Second).String()
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit-1]) + "…"
}

func shortKey(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 && len(key)-idx > 13 {
		return key[:idx+13]
	}
	return key
}
