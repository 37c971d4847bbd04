// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Fetch    FetchConfig
	Cache    CacheConfig
	Load     LoadConfig
	Database DatabaseConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for streamed rows)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// FetchConfig holds settings for retrieving remote CSV data.
type FetchConfig struct {
	// Timeout bounds a single upstream request (default: 60s)
	Timeout time.Duration `env:"FETCH_TIMEOUT" default:"60s"`

	// MaxBodySize is the largest accepted upstream body in bytes (default: 256MB)
	MaxBodySize int64 `env:"FETCH_MAX_BODY_SIZE" default:"268435456"`

	// AllowedMethods lists the HTTP methods a caller may request (default: GET,POST)
	AllowedMethods []string `env:"FETCH_ALLOWED_METHODS" default:"GET,POST"`

	// UserAgent is sent with every upstream request
	UserAgent string `env:"FETCH_USER_AGENT" default:"csvwdc/1.0"`

	// BlockPrivate refuses upstream connections to loopback, private,
	// link-local and unspecified addresses (default: false)
	BlockPrivate bool `env:"FETCH_BLOCK_PRIVATE" default:"false"`
}

// CacheConfig holds settings for the inferred-table cache.
type CacheConfig struct {
	// Backend is "memory" or "pebble" (default: memory)
	Backend string `env:"CACHE_BACKEND" default:"memory"`

	// Dir is the pebble data directory (default: ./data/cache)
	Dir string `env:"CACHE_DIR" default:"./data/cache"`

	// TTL is how long a cached table stays valid; 0 keeps it until invalidated (default: 1h)
	TTL time.Duration `env:"CACHE_TTL" default:"1h"`

	// MaxEntries caps the memory backend (default: 16)
	MaxEntries int `env:"CACHE_MAX_ENTRIES" default:"16"`
}

// LoadConfig bounds concurrent fetch-and-infer work.
type LoadConfig struct {
	// MaxConcurrent is the maximum number of parallel loads (default: 4)
	MaxConcurrent int `env:"LOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a load slot (default: 30s)
	MaxWaitTime time.Duration `env:"LOAD_MAX_WAIT_TIME" default:"30s"`

	// RowBatchSize is the number of rows delivered per chunk (default: 10000)
	RowBatchSize int `env:"LOAD_ROW_BATCH_SIZE" default:"10000"`
}

// DatabaseConfig holds database connection settings for the export sink.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Export is disabled when empty.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// ExportConfig holds settings for writing inferred tables to PostgreSQL.
type ExportConfig struct {
	// BatchSize is the number of rows copied per batch (default: 10000)
	BatchSize int `env:"EXPORT_BATCH_SIZE" default:"10000"`

	// TablePrefix is prepended to generated table names (default: csv_)
	TablePrefix string `env:"EXPORT_TABLE_PREFIX" default:"csv_"`

	// Timeout is the maximum duration for a single export (default: 10m)
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
