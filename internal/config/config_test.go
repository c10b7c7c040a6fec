package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0, cfg.Server.WriteTimeout)
	assert.Equal(t, 20, cfg.Hub.MaxConnectionsPerRestaurant)
	assert.Equal(t, 25, cfg.Hub.KeepaliveIntervalSeconds)
	assert.Equal(t, 32, cfg.Hub.SubscriberBuffer)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
hub:
  max_connections_per_restaurant: 50
  keepalive_interval_seconds: 10
logging:
  level: debug
`), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.Hub.MaxConnectionsPerRestaurant)
	assert.Equal(t, 10, cfg.Hub.KeepaliveIntervalSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 32, cfg.Hub.SubscriberBuffer)
	assert.Equal(t, 1024, cfg.Auth.SessionCacheSize)
}

func TestLoadConfigFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVEONE_SERVER_ADDR", ":7070")
	t.Setenv("SERVEONE_HUB_MAX_CONNECTIONS_PER_RESTAURANT", "3")
	t.Setenv("SERVEONE_HUB_KEEPALIVE_INTERVAL_SECONDS", "notanumber")
	t.Setenv("SERVEONE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", "", "", "")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Hub.MaxConnectionsPerRestaurant)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// A malformed numeric override is ignored.
	assert.Equal(t, 25, cfg.Hub.KeepaliveIntervalSeconds)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("SERVEONE_SERVER_ADDR", ":7070")
	t.Setenv("SERVEONE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", ":6060", "postgres://flag/db", "error")
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, "postgres://flag/db", cfg.Database.URL)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestFilePlusEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0644))

	t.Setenv("SERVEONE_SERVER_ADDR", ":7070")

	cfg, err := LoadConfig(path, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}
