package store

import (
	"path/filepath"
	"testing"

	"github.com/lingualens/lingualens/internal/config"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	t.Run("URLGetsAuthToken", func(t *testing.T) {
		got, err := resolveTarget(config.StoreConfig{URL: "libsql://example.turso.io", AuthToken: "token123"})
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", got.dsn)
		require.False(t, got.local)
	})

	t.Run("URLKeepsExistingQuery", func(t *testing.T) {
		got, err := resolveTarget(config.StoreConfig{URL: "libsql://example.turso.io?foo=bar", AuthToken: "token123"})
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", got.dsn)
	})

	t.Run("URLWinsOverPath", func(t *testing.T) {
		got, err := resolveTarget(config.StoreConfig{URL: "libsql://example.turso.io", Path: "/tmp/x.db"})
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io", got.dsn)
	})

	t.Run("FilePrefixIsLocal", func(t *testing.T) {
		got, err := resolveTarget(config.StoreConfig{Path: "file:./lingualens.db"})
		require.NoError(t, err)
		require.Equal(t, "file:./lingualens.db", got.dsn)
		require.True(t, got.local)
	})

	t.Run("BarePathCreatesDirectory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested")
		got, err := resolveTarget(config.StoreConfig{Path: filepath.Join(dir, "lingualens.db")})
		require.NoError(t, err)
		require.Equal(t, "file:"+filepath.Join(dir, "lingualens.db"), got.dsn)
		require.True(t, got.local)
		require.DirExists(t, dir)
	})

	t.Run("MemoryIsNotLocal", func(t *testing.T) {
		got, err := resolveTarget(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", got.dsn)
		require.False(t, got.local)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := resolveTarget(config.StoreConfig{})
		require.Error(t, err)
	})
}

func TestEndpointOf(t *testing.T) {
	require.Equal(t, "/analyze", endpointOf("/analyze:abc123"))
	require.Equal(t, "/translate", endpointOf("/translate:ff00"))
	require.Equal(t, "bare", endpointOf("bare"))
}

func TestCacheQueryValidate(t *testing.T) {
	require.Error(t, CacheQuery{}.Validate())
	require.NoError(t, CacheQuery{All: true}.Validate())
	require.NoError(t, CacheQuery{Endpoint: "/analyze"}.Validate())
	require.NoError(t, CacheQuery{Prefix: "/trans"}.Validate())

	where, args, err := CacheQuery{Prefix: "/trans"}.whereClause()
	require.NoError(t, err)
	require.Equal(t, "WHERE cache_key LIKE ?", where)
	require.Equal(t, []any{"/trans%"}, args)
}
