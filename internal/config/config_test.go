package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kotoba.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "kotoba.db", cfg.DB.DSN)
	assert.Equal(t, time.Duration(0), cfg.Sync.Interval)
	assert.Equal(t, Diversity{WindowSize: 10, MinSamples: 4, WarnBelow: 0.5, NoteBelow: 0.7}, cfg.Diversity)
	assert.Equal(t, Log{Level: "info", Format: "text"}, cfg.Log)
	assert.False(t, cfg.SyncOnce)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeYAML(t, `
http:
  addr: ":9000"
db:
  driver: pgx
  dsn: postgres://file
diversity:
  window_size: 20
log:
  format: json
`)
	t.Setenv("KOTOBA_DB__DSN", "postgres://env")
	t.Setenv("KOTOBA_DIVERSITY__MIN_SAMPLES", "6")
	t.Setenv("KOTOBA_SYNC__INTERVAL", "15m")

	cfg, err := Load([]string{"--config", path, "--diversity.window_size", "12"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr, "file beats default")
	assert.Equal(t, "pgx", cfg.DB.Driver)
	assert.Equal(t, "postgres://env", cfg.DB.DSN, "env beats file")
	assert.Equal(t, 6, cfg.Diversity.MinSamples)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 12, cfg.Diversity.WindowSize, "explicit flag beats file")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown driver", []string{"--db.driver", "mysql"}},
		{"zero window", []string{"--diversity.window_size", "0"}},
		{"note below warn", []string{"--diversity.warn_below", "0.8", "--diversity.note_below", "0.6"}},
		{"bad log level", []string{"--log.level", "loud"}},
		{"add source without learner", []string{"--add-source", "/decks"}},
		{"unknown flag", []string{"--nope"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadZeroThresholdDisablesTier(t *testing.T) {
	cfg, err := Load([]string{"--diversity.warn_below", "0", "--diversity.note_below", "0.3"})
	require.NoError(t, err)
	assert.Equal(t, Diversity{WindowSize: 10, MinSamples: 4, WarnBelow: 0, NoteBelow: 0.3}, cfg.Diversity)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "diversity.window_size", envKey("KOTOBA_DIVERSITY__WINDOW_SIZE"))
	assert.Equal(t, "db.dsn", envKey("KOTOBA_DB__DSN"))
}
