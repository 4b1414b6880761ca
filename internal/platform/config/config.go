// Package config loads application configuration from environment variables.
// All variables use the TRAINER_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Content     ContentConfig
	Progress    ProgressConfig
	Engine      EngineConfig
	Log         LogConfig
	Environment string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL runs
// the service on the in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL
// disables the cache layer.
type CacheConfig struct {
	URL string
}

// ContentConfig holds the authored-content locations. Strict makes
// validation findings fatal even outside development mode.
type ContentConfig struct {
	Path         string
	BaselinePath string
	Strict       bool
}

// ProgressConfig holds persistence settings for hosted sessions.
type ProgressConfig struct {
	StateDir      string
	RemoteBaseURL string
	DebounceMs    int
}

// EngineConfig holds step pacing settings in milliseconds.
type EngineConfig struct {
	StepDelayMs    int
	CascadeDelayMs int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with TRAINER_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRAINER_SERVER_PORT", 8080),
			Host: envStr("TRAINER_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("TRAINER_DATABASE_URL", ""),
			MaxConns: envInt("TRAINER_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("TRAINER_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("TRAINER_CACHE_URL", ""),
		},
		Content: ContentConfig{
			Path:         envStr("TRAINER_CONTENT_PATH", "./content"),
			BaselinePath: envStr("TRAINER_CONTENT_BASELINE_PATH", ""),
			Strict:       envBool("TRAINER_CONTENT_STRICT", false),
		},
		Progress: ProgressConfig{
			StateDir:      envStr("TRAINER_STATE_DIR", "./state"),
			RemoteBaseURL: envStr("TRAINER_REMOTE_BASE_URL", ""),
			DebounceMs:    envInt("TRAINER_PROGRESS_DEBOUNCE_MS", 1000),
		},
		Engine: EngineConfig{
			StepDelayMs:    envInt("TRAINER_ENGINE_STEP_DELAY_MS", 600),
			CascadeDelayMs: envInt("TRAINER_ENGINE_CASCADE_DELAY_MS", 800),
		},
		Log: LogConfig{
			Level:  envStr("TRAINER_LOG_LEVEL", "info"),
			Format: envStr("TRAINER_LOG_FORMAT", "json"),
		},
		Environment: envStr("TRAINER_ENV", "development"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Content.Path == "" {
		return fmt.Errorf("TRAINER_CONTENT_PATH is required")
	}
	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("TRAINER_ENV must be 'development' or 'production', got %q", c.Environment)
	}
	if c.Engine.StepDelayMs < 0 || c.Engine.CascadeDelayMs < 0 {
		return fmt.Errorf("engine delays must not be negative")
	}
	return nil
}

// Development returns true when running in development mode, where content
// validation findings are fatal instead of logged.
func (c *Config) Development() bool {
	return c.Environment == "development"
}

// StrictContent reports whether content validation findings should abort
// startup: always in development, and in production when Strict is set.
func (c *Config) StrictContent() bool {
	return c.Development() || c.Content.Strict
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
