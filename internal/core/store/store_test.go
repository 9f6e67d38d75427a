package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/config"
)

func TestLibsqlDSN(t *testing.T) {
	t.Run("URLWithToken", func(t *testing.T) {
		dsn, err := libsqlDSN(config.StoreConfig{URL: "libsql://cache.turso.io", AuthToken: "token123"})
		require.NoError(t, err)
		require.Equal(t, "libsql://cache.turso.io?authToken=token123", dsn)
	})

	t.Run("URLKeepsExistingToken", func(t *testing.T) {
		dsn, err := libsqlDSN(config.StoreConfig{URL: "libsql://cache.turso.io?authToken=abc", AuthToken: "other"})
		require.NoError(t, err)
		require.Equal(t, "libsql://cache.turso.io?authToken=abc", dsn)
	})

	t.Run("URLWinsOverPath", func(t *testing.T) {
		dsn, err := libsqlDSN(config.StoreConfig{URL: "libsql://cache.turso.io", Path: "/tmp/ignored.db"})
		require.NoError(t, err)
		require.Equal(t, "libsql://cache.turso.io", dsn)
	})

	t.Run("FilePrefix", func(t *testing.T) {
		dsn, err := libsqlDSN(config.StoreConfig{Path: "file:./ncbi-mcp.db"})
		require.NoError(t, err)
		require.Equal(t, "file:./ncbi-mcp.db", dsn)
	})

	t.Run("PlainPathCreatesDirectory", func(t *testing.T) {
		dir := t.TempDir()
		dsn, err := libsqlDSN(config.StoreConfig{Path: dir + "/nested/cache.db"})
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/nested/cache.db", dsn)
		require.DirExists(t, dir+"/nested")
	})

	t.Run("Memory", func(t *testing.T) {
		dsn, err := libsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := libsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, _, err := s.GetCachedResponse(context.Background(), "einfo:_all:json")
	require.Error(t, err)
	require.NoError(t, s.Close())
	require.Empty(t, s.Driver())
}
