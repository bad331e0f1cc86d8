package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "REDIS_URL", "DATABASE_URL", "LOG_LEVEL", "ALLOWED_ORIGIN", "EVENTS_CHANNEL", "MATCH_POLL_INTERVAL", "MATCH_POLL_ATTEMPTS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "*", cfg.AllowedOrigin)
	assert.Equal(t, "game:events", cfg.EventsChannel)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10, cfg.PollAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MATCH_POLL_INTERVAL", "250ms")
	t.Setenv("MATCH_POLL_ATTEMPTS", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 20, cfg.PollAttempts)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MATCH_POLL_INTERVAL", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MATCH_POLL_INTERVAL", "500ms")
	t.Setenv("MATCH_POLL_ATTEMPTS", "0")
	_, err = Load()
	assert.Error(t, err)
}
