package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for assessment-console
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Platform PlatformConfig
	Catalog  CatalogConfig
	Tracker  TrackerConfig
	Janitor  JanitorConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host      string
	Port      int
	AuthToken string
}

// DatabaseConfig holds the audit-trail PostgreSQL configuration. An empty
// DSN disables the audit trail.
type DatabaseConfig struct {
	DSN           string
	MigrationsDir string
}

// PlatformConfig holds upstream assessment-platform API configuration
type PlatformConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CatalogConfig holds assessment-catalog configuration
type CatalogConfig struct {
	Dir string
}

// TrackerConfig holds progress-polling configuration
type TrackerConfig struct {
	Interval   time.Duration
	GraceDelay time.Duration
}

// JanitorConfig holds idle-wizard reaper configuration
type JanitorConfig struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

// Load loads configuration from the environment. A .env file in the working
// directory is read first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read .env file", "error", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "0.0.0.0"),
			Port:      getEnvAsInt("SERVER_PORT", 8080),
			AuthToken: getEnv("SERVER_AUTH_TOKEN", ""),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("DATABASE_DSN", ""),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Platform: PlatformConfig{
			BaseURL: getEnv("PLATFORM_BASE_URL", ""),
			APIKey:  getEnv("PLATFORM_API_KEY", ""),
			Timeout: getEnvAsDuration("PLATFORM_TIMEOUT", 30*time.Second),
		},
		Catalog: CatalogConfig{
			Dir: getEnv("CATALOG_DIR", "./catalog"),
		},
		Tracker: TrackerConfig{
			Interval:   getEnvAsDuration("TRACKER_INTERVAL", 5*time.Second),
			GraceDelay: getEnvAsDuration("TRACKER_GRACE_DELAY", 1500*time.Millisecond),
		},
		Janitor: JanitorConfig{
			Interval: getEnvAsDuration("JANITOR_INTERVAL", 5*time.Minute),
			IdleTTL:  getEnvAsDuration("WIZARD_IDLE_TTL", 30*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform base URL is required")
	}

	if c.Platform.APIKey == "" {
		return fmt.Errorf("platform API key is required")
	}

	if c.Tracker.Interval < time.Second {
		return fmt.Errorf("tracker interval must be at least 1s, got %s", c.Tracker.Interval)
	}

	return nil
}

// AuditEnabled reports whether the submission audit trail is configured
func (c *Config) AuditEnabled() bool {
	return c.Database.DSN != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
