package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// HTTP Server Configuration
	Server ServerConfig

	// Session Configuration
	Session SessionConfig

	// Logging Configuration
	Logging LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr          string // Listen address (host:port)
	AllowedOrigin string // Browser origin allowed to send the session cookie
	TemplateGlob  string // Glob for HTML views
}

// SessionConfig holds session cookie and lifetime configuration
type SessionConfig struct {
	CookieName   string
	CookieSecure bool          // Set the Secure attribute (requires HTTPS)
	Lifetime     time.Duration // Absolute session lifetime
	CleanupSpec  string        // Cron spec for the expired-session purge
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// Database URL - default to a local sqlite file, allow override for dev
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "gatehouse.sqlite"
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	origin := os.Getenv("ALLOWED_ORIGIN")
	if origin == "" {
		origin = "http://localhost:8080"
	}

	templateGlob := os.Getenv("TEMPLATE_GLOB")
	if templateGlob == "" {
		templateGlob = "web/templates/*.html"
	}

	cookieName := os.Getenv("SESSION_COOKIE_NAME")
	if cookieName == "" {
		cookieName = "gh_session"
	}

	cookieSecure := false
	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_COOKIE_SECURE %q: %w", v, err)
		}
		cookieSecure = parsed
	}

	lifetime := 12 * time.Hour
	if v := os.Getenv("SESSION_LIFETIME"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_LIFETIME %q: %w", v, err)
		}
		lifetime = parsed
	}

	cleanupSpec := os.Getenv("SESSION_CLEANUP_SPEC")
	if cleanupSpec == "" {
		cleanupSpec = "@every 10m"
	}

	// Logging configuration - defaults suitable for production
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}

	return &Config{
		Database: DatabaseConfig{
			URL: dbURL,
		},
		Server: ServerConfig{
			Addr:          addr,
			AllowedOrigin: origin,
			TemplateGlob:  templateGlob,
		},
		Session: SessionConfig{
			CookieName:   cookieName,
			CookieSecure: cookieSecure,
			Lifetime:     lifetime,
			CleanupSpec:  cleanupSpec,
		},
		Logging: LoggingConfig{
			Level:  logLevel,
			Format: logFormat,
		},
	}, nil
}
