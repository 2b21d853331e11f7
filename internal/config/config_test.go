package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
listen_addr: ":9090"
allow_anon_reads: true
feed:
  heartbeat_seconds: 5
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.True(t, cfg.AllowAnonReads)
	assert.False(t, cfg.AllowAnonWrites)
	assert.Equal(t, 5, cfg.Feed.HeartbeatSeconds)
	assert.Equal(t, "json", cfg.Log.Format)

	// Omitted fields keep defaults.
	assert.Equal(t, "satchel.db", cfg.DatabasePath)
	assert.Equal(t, 24, cfg.Session.LifetimeHours)
}

func TestParseEmptyYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("listne_addr: \":9090\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listne_addr")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidateRejectsHeartbeatOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Feed.HeartbeatSeconds = 0
	require.Error(t, cfg.Validate())

	cfg.Feed.HeartbeatSeconds = 4000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = ""
	require.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_path: /tmp/wiki.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/wiki.db", cfg.DatabasePath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDerivedValues(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "error"
	cfg.Feed.HeartbeatSeconds = 2
	cfg.Session.LifetimeHours = 1

	assert.Equal(t, slog.LevelError, cfg.SlogLevel())
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, time.Hour, cfg.SessionLifetime())
}
