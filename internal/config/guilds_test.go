package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGuildsMissingFile(t *testing.T) {
	s, err := LoadGuilds(filepath.Join(t.TempDir(), "guilds.yaml"))
	require.NoError(t, err)

	_, ok := s.ConnString(123)
	assert.False(t, ok)
	assert.Empty(t, s.Configured())
}

func TestGuildStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")

	s, err := LoadGuilds(path)
	require.NoError(t, err)
	require.NoError(t, s.SetConnString(100, "postgresql://a:b@h:5432/one"))
	require.NoError(t, s.SetConnString(200, "postgresql://a:b@h:5432/two"))

	reloaded, err := LoadGuilds(path)
	require.NoError(t, err)

	dsn, ok := reloaded.ConnString(100)
	require.True(t, ok)
	assert.Equal(t, "postgresql://a:b@h:5432/one", dsn)
	assert.Equal(t, []int64{100, 200}, reloaded.Configured())
}

func TestGuildStoreReplaceConnString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")

	s, err := LoadGuilds(path)
	require.NoError(t, err)
	require.NoError(t, s.SetConnString(100, "postgresql://a:b@h:5432/old"))
	require.NoError(t, s.SetConnString(100, "postgresql://a:b@h:5432/new"))

	dsn, ok := s.ConnString(100)
	require.True(t, ok)
	assert.Equal(t, "postgresql://a:b@h:5432/new", dsn)
	assert.Equal(t, []int64{100}, s.Configured())
}

func TestLoadGuildsRejectsMalformedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notanumber:\n  conn_string: x\n"), 0o644))

	_, err := LoadGuilds(path)
	assert.Error(t, err)
}
