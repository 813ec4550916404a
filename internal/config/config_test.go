package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeeds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFeeds(t *testing.T) {
	path := writeFeeds(t, `[
		{"category": "forex", "name": "fx-news", "url": "https://fx.example/rss"},
		{"name": "misc-news", "url": "http://misc.example/rss"}
	]`)

	specs, err := LoadFeeds(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "forex", specs[0].Category)
	assert.Equal(t, "fx-news", specs[0].Name)
	// Missing category defaults to general.
	assert.Equal(t, "general", specs[1].Category)
}

func TestLoadFeedsMissingFile(t *testing.T) {
	_, err := LoadFeeds(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadFeedsEmptyList(t *testing.T) {
	path := writeFeeds(t, `[]`)
	_, err := LoadFeeds(path)
	assert.Error(t, err)
}

func TestLoadFeedsRejectsInvalidURL(t *testing.T) {
	path := writeFeeds(t, `[{"category": "forex", "name": "bad", "url": "ftp://fx.example/rss"}]`)
	_, err := LoadFeeds(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")
}

func TestLoadFeedsRejectsUnnamedEntry(t *testing.T) {
	path := writeFeeds(t, `[{"category": "forex", "url": "https://fx.example/rss"}]`)
	_, err := LoadFeeds(path)
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "feeds.json", cfg.FeedsFile)
	assert.Equal(t, "@every 2m", cfg.IngestSpec)
	assert.Equal(t, "@hourly", cfg.StatsSpec)
	assert.Equal(t, "@daily", cfg.MaintenanceSpec)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5432, cfg.PGPort)
	assert.Equal(t, "127.0.0.1:8088", cfg.ControlAddr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INGEST_SCHEDULE", "@every 30s")
	t.Setenv("FETCH_TIMEOUT", "10s")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("LOG_PRETTY", "false")

	cfg := Load()

	assert.Equal(t, "@every 30s", cfg.IngestSpec)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5433, cfg.PGPort)
	assert.False(t, cfg.LogPretty)
}

func TestLoadIgnoresInvalidEnvValues(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-number")
	t.Setenv("FETCH_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 5432, cfg.PGPort)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
}
