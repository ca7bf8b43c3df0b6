package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CHIMERA_GAME_ID", "42")
	t.Setenv("CHIMERA_PLAYER_ID", "p1")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, "8090", cfg.Gateway.Port)
	assert.Equal(t, FallbackBeacon, cfg.Leave.Fallback)
	assert.Equal(t, "chimera.session", cfg.NATS.SubjectPrefix)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chimera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://chimera.example.com
game_id: "7"
player_id: from-file
poll_interval: 5s
gateway:
  port: "9000"
  allowed_origins: ["http://localhost:5173"]
leave:
  fallback: nats
nats:
  url: nats://broker:4222
`), 0o600))

	t.Setenv("CHIMERA_PLAYER_ID", "from-env")
	t.Setenv("POLL_INTERVAL", "1500")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chimera.example.com", cfg.APIURL)
	assert.Equal(t, "7", cfg.GameID)
	assert.Equal(t, "from-env", cfg.PlayerID)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "9000", cfg.Gateway.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, FallbackNATS, cfg.Leave.Fallback)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("missing identity", func(t *testing.T) {
		_, err := loadConfig("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CHIMERA_GAME_ID")
		assert.Contains(t, err.Error(), "CHIMERA_PLAYER_ID")
	})

	t.Run("bad fallback", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LEAVE_FALLBACK", "carrier-pigeon")
		_, err := loadConfig("")
		assert.ErrorContains(t, err, "LEAVE_FALLBACK")
	})

	t.Run("bad log level", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LOG_LEVEL", "loud")
		_, err := loadConfig("")
		assert.ErrorContains(t, err, "LOG_LEVEL")
	})

	t.Run("missing file", func(t *testing.T) {
		setRequiredEnv(t)
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("D_GO", "2m")
	t.Setenv("D_MS", "250")
	t.Setenv("D_BAD", "soon")

	assert.Equal(t, 2*time.Minute, getEnvAsDuration("D_GO", time.Second))
	assert.Equal(t, 250*time.Millisecond, getEnvAsDuration("D_MS", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("D_BAD", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("D_UNSET", time.Second))
}
