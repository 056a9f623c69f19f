package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TALLY_CONFIG_DIR", dir)
	t.Setenv("TALLY_CONFIG", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "BRL", cfg.Currency)
	assert.Equal(t, int64(5<<20), cfg.Storage.QuotaBytes)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Sync.Auto)
	assert.Equal(t, "http://localhost:8080", cfg.Remote.URL)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
currency = "usd"
data_dir = "/tmp/tally-data"

[remote]
url = "https://example.test"

[cache]
ttl = "2h"
`), 0o644))

	t.Setenv("TALLY_REMOTE_API_KEY", "tally_live_env")
	t.Setenv("TALLY_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "/tmp/tally-data", cfg.DataDir)
	assert.Equal(t, "https://example.test", cfg.Remote.URL)
	assert.Equal(t, "tally_live_env", cfg.Remote.APIKey)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(filepath.Join(dir, "nope.toml"))
	require.NoError(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("currency = ["), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Currency = "EUR"
	cfg.User.ID = "u_123"
	cfg.Cache.TTL = 90 * time.Minute

	require.NoError(t, Save("", cfg))
	require.FileExists(t, filepath.Join(dir, "config.toml"))

	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "EUR", loaded.Currency)
	assert.Equal(t, "u_123", loaded.User.ID)
	assert.Equal(t, 90*time.Minute, loaded.Cache.TTL)
}
