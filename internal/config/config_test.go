package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/logging/queue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3333, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3333", cfg.Server.Addr())
	assert.Equal(t, "./logs", cfg.LogsDir)
	assert.Equal(t, logging.ChannelConfig{MaxFileSize: 10 << 20, MaxFiles: 5, Format: logging.FormatJSONL}, cfg.Defaults)
	require.Len(t, cfg.Flush.Tiers, 3)
	assert.Equal(t, 500*time.Millisecond, cfg.Flush.Tiers[1].Interval)
	assert.Equal(t, queue.DefaultRetryPolicy(), cfg.Flush.Retry)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
	assert.Empty(t, cfg.Channels)
	assert.Empty(t, cfg.Sources)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 4000
logs_dir: /var/log/app
defaults:
  max_files: 2
  format: text
channels:
  audit:
    max_files: 20
    format: jsonl
flush:
  tiers:
    - min_velocity: 0
      interval: 250ms
      batch_size: 5
  retry:
    max_attempts: 3
    overflow: reject-new
sources:
  - path: /var/log/syslog
    channel: system
    level: warn
`)

	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "/var/log/app", cfg.LogsDir)
	assert.Equal(t, int64(10<<20), cfg.Defaults.MaxFileSize)
	assert.Equal(t, 2, cfg.Defaults.MaxFiles)
	assert.Equal(t, logging.FormatText, cfg.Defaults.Format)

	require.Contains(t, cfg.Channels, "audit")
	audit := cfg.Channels["audit"]
	require.NotNil(t, audit.MaxFiles)
	assert.Equal(t, 20, *audit.MaxFiles)
	assert.Nil(t, audit.MaxFileSize)

	require.Len(t, cfg.Flush.Tiers, 1)
	assert.Equal(t, 250*time.Millisecond, cfg.Flush.Tiers[0].Interval)
	assert.Equal(t, 3, cfg.Flush.Retry.MaxAttempts)
	assert.Equal(t, queue.OverflowRejectNew, cfg.Flush.Retry.Overflow)
	assert.Equal(t, 200*time.Millisecond, cfg.Flush.Retry.InitialInterval)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, SourceConfig{Path: "/var/log/syslog", Channel: "system", Level: logging.LevelWarn}, cfg.Sources[0])
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 4000\n")
	t.Setenv("LOGSERVER_SERVER__PORT", "5000")
	t.Setenv("LOGSERVER_LOGS_DIR", "/tmp/env-logs")
	t.Setenv("LOGSERVER_FLUSH__RETRY__MAX_PENDING", "42")
	t.Setenv("LOGSERVER_HTTP__CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOGSERVER_SERVER__SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "/tmp/env-logs", cfg.LogsDir)
	assert.Equal(t, 42, cfg.Flush.Retry.MaxPending)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "logs_dir: /from/env/path\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env/path", cfg.LogsDir)
}

func TestLoad_OverridesWin(t *testing.T) {
	t.Setenv("LOGSERVER_SERVER__PORT", "5000")

	cfg, err := Load(LoadOptions{Overrides: map[string]any{"server.port": 6000, "logs_dir": "/flags"}})
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "/flags", cfg.LogsDir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"bad format", "defaults:\n  format: xml\n"},
		{"zero files", "defaults:\n  max_files: 0\n"},
		{"bad overflow", "flush:\n  retry:\n    overflow: panic\n"},
		{"channel override", "channels:\n  app:\n    max_files: 0\n"},
		{"channel name", "channels:\n  a/b:\n    max_files: 2\n"},
		{"source without path", "sources:\n  - channel: x\n"},
		{"log level", "logging:\n  level: chatty\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoadOptions{Path: writeConfig(t, tt.content)})
			assert.Error(t, err)
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "server.port", envTransformFunc("LOGSERVER_SERVER__PORT"))
	assert.Equal(t, "logs_dir", envTransformFunc("LOGSERVER_LOGS_DIR"))
	assert.Equal(t, "channels.app.max_files", envTransformFunc("LOGSERVER_CHANNELS__APP__MAX_FILES"))
	assert.Equal(t, "", envTransformFunc(ConfigPathEnvVar))
}
