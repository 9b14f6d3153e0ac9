package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv(FileEnv, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.UsesS3())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	path := filepath.Join(t.TempDir(), "dietinsights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
dataset:
  path: data/diets.csv
  bucket: datasets
  endpoint: http://127.0.0.1:10000
watch:
  enabled: true
  debounce: 1s
cache:
  max_entries: 32
log:
  level: debug
  format: json
`), 0o644))
	t.Setenv(FileEnv, path)
	t.Setenv("CACHE_MAX_ENTRIES", "64")
	t.Setenv("RELOAD_INTERVAL", "5m")
	t.Setenv("DATASET_BLOB", "diets.csv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "data/diets.csv", cfg.Dataset.Path)
	assert.Equal(t, "diets.csv", cfg.Dataset.Blob)
	assert.True(t, cfg.UsesS3())
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 5*time.Minute, cfg.Watch.Interval)
	assert.Equal(t, 64, cfg.Cache.MaxEntries)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv(FileEnv, "")

	cases := map[string][2]string{
		"bad level":    {"LOG_LEVEL", "loud"},
		"bad bool":     {"WATCH_DATASET", "maybe"},
		"bad duration": {"RELOAD_MIN_GAP", "soon"},
		"bad int":      {"CACHE_MAX_ENTRIES", "many"},
		"no path":      {"DATASET_PATH", ""},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPortOverride(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv(FileEnv, "")
	t.Setenv("LISTEN_ADDR", "")
	os.Unsetenv("LISTEN_ADDR")
	t.Setenv("PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.ListenAddr)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
