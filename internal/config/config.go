// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string // empty disables the gRPC health endpoint
	FrontendURL string
	CatalogPath string // optional YAML override of the embedded form catalog

	Backend  BackendConfig
	Archive  ArchiveConfig
	Sessions SessionConfig
	Limits   LimitConfig
}

// BackendConfig describes the assistant backend.
type BackendConfig struct {
	URL            string
	Timeout        time.Duration
	HealthInterval time.Duration
}

// ArchiveConfig controls the SQLite transcript archive.
type ArchiveConfig struct {
	Enabled   bool
	DBPath    string
	Retention time.Duration
}

// SessionConfig controls live conversation views.
type SessionConfig struct {
	IdleTTL    time.Duration
	ThinkPause time.Duration
}

// LimitConfig bounds request volume.
type LimitConfig struct {
	Requests    int
	Window      time.Duration
	MaxBodySize int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		CatalogPath: getEnv("CATALOG_PATH", ""),
		Backend: BackendConfig{
			URL:            getEnv("BACKEND_URL", "http://localhost:3001"),
			Timeout:        getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
			HealthInterval: getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("ARCHIVE_ENABLED", true),
			DBPath:    getEnv("DB_PATH", "./data/intelliform.db"),
			Retention: getEnvDuration("ARCHIVE_RETENTION", 7*24*time.Hour),
		},
		Sessions: SessionConfig{
			IdleTTL:    getEnvDuration("SESSION_IDLE_TTL", 60*time.Minute),
			ThinkPause: getEnvDuration("PACING_THINK_PAUSE", time.Second),
		},
		Limits: LimitConfig{
			Requests:    getEnvInt("RATE_LIMIT_REQUESTS", 60),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.Backend.URL == "" {
		return errors.New("BACKEND_URL cannot be empty")
	}
	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL %q is not an absolute URL", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be > 0")
	}
	if c.Backend.HealthInterval <= 0 {
		return errors.New("HEALTH_INTERVAL must be > 0")
	}
	if c.Archive.Enabled && c.Archive.DBPath == "" {
		return errors.New("DB_PATH cannot be empty when ARCHIVE_ENABLED is set")
	}
	if c.Sessions.IdleTTL <= 0 {
		return errors.New("SESSION_IDLE_TTL must be > 0")
	}
	if c.Sessions.ThinkPause < 0 {
		return errors.New("PACING_THINK_PAUSE cannot be negative")
	}
	if c.Limits.Requests <= 0 || c.Limits.Window <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Limits.MaxBodySize <= 0 {
		return errors.New("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the front end.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1500ms") and plain seconds ("30").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
