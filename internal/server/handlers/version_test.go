package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/core/engine"
)

func getVersion(t *testing.T, handler http.HandlerFunc) VersionResponse {
	t.Helper()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestVersionHandlerIncludesBuildMetadata(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-01-07T12:00:00Z")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	resp := getVersion(t, NewVersionHandler(nil, false))
	assert.Equal(t, "lingualens", resp.App.Name)
	assert.Equal(t, "1.2.3", resp.App.Version)
	assert.Equal(t, "abcd123", resp.App.Commit)
	assert.NotEmpty(t, resp.Dependencies.Gofulmen)
	assert.Nil(t, resp.Gateway)
}

func TestVersionHandlerDescribesGateway(t *testing.T) {
	registry, err := engine.NewRegistry(engine.DefaultPolicies, nil)
	require.NoError(t, err)
	api := &API{
		Registry: registry,
		Cache:    engine.NewResponseCache(engine.NewMemoryBackend(), 90*time.Second, nil, nil),
	}

	resp := getVersion(t, NewVersionHandler(api, true))
	require.NotNil(t, resp.Gateway)
	assert.Equal(t, registry.Policies(), resp.Gateway.Policies)
	assert.Equal(t, 90, resp.Gateway.CacheTTLSeconds)
	assert.True(t, resp.Gateway.AuthRequired)
}
