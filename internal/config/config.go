package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment.
type Config struct {
	Port          string
	RedisURL      string
	DatabaseURL   string
	LogLevel      string
	AllowedOrigin string
	EventsChannel string
	PollInterval  time.Duration
	PollAttempts  int
}

// Load reads an optional .env file and then the environment. Unset
// variables fall back to defaults; malformed ones are an error.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		RedisURL:      getEnv("REDIS_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		EventsChannel: getEnv("EVENTS_CHANNEL", "game:events"),
	}

	var err error
	if cfg.PollInterval, err = time.ParseDuration(getEnv("MATCH_POLL_INTERVAL", "500ms")); err != nil {
		return nil, fmt.Errorf("MATCH_POLL_INTERVAL: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("MATCH_POLL_INTERVAL must be positive")
	}
	if cfg.PollAttempts, err = strconv.Atoi(getEnv("MATCH_POLL_ATTEMPTS", "10")); err != nil {
		return nil, fmt.Errorf("MATCH_POLL_ATTEMPTS: %w", err)
	}
	if cfg.PollAttempts < 1 {
		return nil, fmt.Errorf("MATCH_POLL_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// getEnv reads an environment variable and returns its value or a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
