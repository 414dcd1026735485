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

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thingdir.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, 10000, cfg.Events.Retention)
	assert.True(t, cfg.Validation.Enabled)
	assert.Empty(t, cfg.Bridge.NATS.URL)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  heartbeat: 5s
events:
  retention: 50
validation:
  enabled: false
log:
  level: debug
  format: json
bridge:
  nats:
    url: nats://localhost:4222
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.Events.Retention)
	assert.Equal(t, 64, cfg.Events.ReaderBuffer)
	assert.False(t, cfg.Validation.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.Bridge.NATS.URL)
	assert.Equal(t, "thingdir", cfg.Bridge.NATS.SubjectPrefix)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "server:\n  port: 80\n", "field port not found"},
		{"bad duration", "server:\n  heartbeat: soon\n", "parse config"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"zero retention", "events:\n  retention: 0\n", "events.retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Store.Path = ""
	cfg.Bridge.NATS.URL = "nats://x"
	cfg.Bridge.NATS.SubjectPrefix = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.addr", "store.path", "bridge.nats.subject_prefix"} {
		assert.Contains(t, err.Error(), want)
	}
}
