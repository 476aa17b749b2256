package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/auth"
	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/client"
	"github.com/lingualens/lingualens/internal/core/engine"
	"github.com/lingualens/lingualens/internal/output"
	"github.com/lingualens/lingualens/internal/server/handlers"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExitCodeFor(t *testing.T) {
	retry := 3
	cases := []struct {
		err  error
		want foundry.ExitCode
	}{
		{&configError{err: errors.New("bad")}, foundry.ExitConfigInvalid},
		{fmt.Errorf("wrapped: %w", &engine.RateLimitedError{Decision: core.Decision{RetryAfter: &retry}}), foundry.ExitFailure},
		{client.ErrUnavailable, foundry.ExitExternalServiceUnavailable},
		{client.ErrTimeout, foundry.ExitExternalServiceUnavailable},
		{&client.APIError{StatusCode: 503}, foundry.ExitExternalServiceUnavailable},
		{&client.APIError{StatusCode: 400}, foundry.ExitFailure},
		{errors.New("other"), foundry.ExitFailure},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExitCodeFor(tc.err), tc.err.Error())
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "rate-limit.list", sanitizeFilename("Rate Limit.list"))
	assert.Equal(t, "output", sanitizeFilename("  ..  "))
	assert.Equal(t, "yaml", outputExtension(output.FormatYAML))
	assert.Equal(t, "csv", outputExtension(output.FormatCSV))
	assert.Equal(t, "txt", outputExtension(output.FormatTable))
}

func outputCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "render"}
	addOutputFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestTargetFromFlags(t *testing.T) {
	dir := t.TempDir()

	target, err := targetFromFlags(outputCommand(t, "-o", "csv", "--out-dir", dir), "Batch Run")
	require.NoError(t, err)
	assert.Equal(t, output.FormatCSV, target.format)
	assert.Equal(t, filepath.Join(dir, "batch-run.csv"), target.path)

	target, err = targetFromFlags(outputCommand(t, "--out", "-"), "x")
	require.NoError(t, err)
	assert.Empty(t, target.path)

	_, err = targetFromFlags(outputCommand(t, "--out", "a.txt", "--out-dir", dir), "x")
	assert.ErrorIs(t, err, errOutConflict)

	_, err = targetFromFlags(outputCommand(t, "-o", "xml"), "x")
	assert.Error(t, err)
}

func TestWriteViewToNestedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stats.json")
	c := outputCommand(t, "-o", "json", "--out", path)
	var stdout bytes.Buffer
	c.SetOut(&stdout)

	view := output.View{Header: []string{"Metric", "Value"}, Rows: [][]string{{"analyzed", "3"}}}
	require.NoError(t, writeView(c, "stats", view))

	assert.Empty(t, stdout.String())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"metric":"analyzed","value":"3"}]`, string(raw))
}

func TestReadBatchTexts(t *testing.T) {
	input := "# header comment\nfirst line\n\n   \n  second line  \n#skip\nthird\n"

	texts, err := readBatchTexts(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line", "third"}, texts)
}

func TestReadBatchTextsRejectsOversizedLine(t *testing.T) {
	_, err := readBatchTexts(strings.NewReader(strings.Repeat("a", maxBatchLine+1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read batch input")
}

func TestLoadBatchTextsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texts.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o600))

	texts, err := loadBatchTexts(&cobra.Command{}, []string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, texts)

	c := &cobra.Command{}
	c.SetIn(strings.NewReader("from stdin\n"))
	texts, err = loadBatchTexts(c, []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, []string{"from stdin"}, texts)
}

func TestBatchCommandRequiresTexts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("# only comments\n\n"), 0o600))

	_, err := runRoot(t, "batch", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no texts to analyze")
}

func TestBuildRegistryAppliesOverridesAndMargin(t *testing.T) {
	cfg := &config.Config{RateLimits: map[string]int{"analyze": 10}, RateLimitMargin: 0.5}

	registry, err := buildRegistry(cfg)
	require.NoError(t, err)

	limits := map[string]int{}
	for _, row := range registry.Snapshot() {
		limits[row.Policy] = row.Limit
	}
	assert.Equal(t, map[string]int{"analyze": 5, "translate": 10, "extension": 50}, limits)
}

func TestBuildCacheBackend(t *testing.T) {
	backend, redisBackend, err := buildCacheBackend(&config.Config{Cache: config.CacheConfig{Backend: "memory"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &engine.MemoryBackend{}, backend)
	assert.Nil(t, redisBackend)

	_, _, err = buildCacheBackend(&config.Config{Cache: config.CacheConfig{Backend: "store"}}, nil)
	require.Error(t, err)

	_, _, err = buildCacheBackend(&config.Config{Cache: config.CacheConfig{Backend: "redis"}, Redis: config.RedisConfig{URL: "not a url"}}, nil)
	require.Error(t, err)

	_, _, err = buildCacheBackend(&config.Config{Cache: config.CacheConfig{Backend: "disk"}}, nil)
	require.Error(t, err)
}

func TestRestartRequired(t *testing.T) {
	current := &config.Config{RateLimits: map[string]int{"analyze": 10}, RateLimitMargin: 1}

	same := &config.Config{RateLimits: map[string]int{"analyze": 10}, RateLimitMargin: 1}
	assert.False(t, restartRequired(current, same))

	changed := &config.Config{RateLimits: map[string]int{"analyze": 11}, RateLimitMargin: 1}
	assert.True(t, restartRequired(current, changed))

	ttl := &config.Config{RateLimits: map[string]int{"analyze": 10}, RateLimitMargin: 1, Cache: config.CacheConfig{TTL: time.Minute}}
	assert.True(t, restartRequired(current, ttl))
}

func TestReadTextFromStdin(t *testing.T) {
	c := &cobra.Command{}
	c.SetIn(strings.NewReader("  hello there \n"))

	text, err := readText(c, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	text, err = readText(c, []string{"direct"})
	require.NoError(t, err)
	assert.Equal(t, "direct", text)
}

func TestHostClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"unknown rate limit policy: nope"}}`))
	}))
	defer srv.Close()

	host := &hostClient{baseURL: srv.URL, token: "secret-token", http: srv.Client()}
	err := host.do(t.Context(), http.MethodGet, "/v1/rate-limits/nope", nil)

	var hostErr *hostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, http.StatusNotFound, hostErr.Status)
	assert.Equal(t, "NOT_FOUND", hostErr.Code)
	assert.Contains(t, hostErr.Error(), "unknown rate limit policy")
}

func TestRateLimitListCommand(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rate-limits/analyze", r.URL.Path)
		_ = json.NewEncoder(w).Encode(handlers.RateLimitsResponse{Policies: []core.Status{
			{Policy: "analyze", Key: "/analyze", Used: 3, Remaining: 27, Limit: 30, ResetAt: &reset},
		}})
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, "api:\n  base_url: http://127.0.0.1:1\n")
	out, err := runRoot(t, "rate-limit", "list", "analyze", "--server", srv.URL, "-o", "json", "--config", cfgPath)
	require.NoError(t, err)

	var rows []core.Status
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 27, rows[0].Remaining)
}

func TestRateLimitResetCommandWithKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/rate-limits/analyze", r.URL.Path)
		assert.Equal(t, "/analyze", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"reset":["analyze"],"key":"/analyze"}`))
	}))
	defer srv.Close()
	t.Cleanup(func() { _ = rateLimitResetCmd.Flags().Set("key", "") })

	cfgPath := writeConfig(t, "api:\n  base_url: http://127.0.0.1:1\n")
	out, err := runRoot(t, "rate-limit", "reset", "analyze", "--key", "/analyze", "--server", srv.URL, "-o", "json", "--config", cfgPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"reset":["analyze"],"key":"/analyze"}`, out)
}

func TestTokenCommand(t *testing.T) {
	cfgPath := writeConfig(t, "server:\n  auth_secret: test-secret\n  token_ttl: 1h\n")

	out, err := runRoot(t, "token", "--subject", "tester", "--config", cfgPath)
	require.NoError(t, err)

	signer, err := auth.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	claims, err := signer.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "tester", claims.Subject)
	assert.Equal(t, "api", claims.Scope)
}
