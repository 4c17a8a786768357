// Package config loads application configuration from environment variables.
// Defaults are applied for unset values and every setting is validated on
// startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Generator GeneratorConfig
	Upload    UploadConfig
	Preview   PreviewConfig
	Database  DatabaseConfig
	History   HistoryConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request, including
	// uploaded files (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response. Zero
	// disables it; generation responses can take up to GENERATOR_TIMEOUT.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// in-flight generations (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except generation (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// SessionTTL is how long an idle browser session keeps its form (default: 2h)
	SessionTTL time.Duration `env:"SERVER_SESSION_TTL" default:"2h"`
}

// GeneratorConfig holds settings for the remote generation service.
type GeneratorConfig struct {
	// BaseURL is the generation service root; requests go to BaseURL/generate
	BaseURL string `env:"GENERATOR_BASE_URL" default:"http://localhost:5000"`

	// Timeout is the hard deadline for one generation request (default: 300s)
	Timeout time.Duration `env:"GENERATOR_TIMEOUT" default:"300s"`

	// MaxConcurrent bounds in-flight generations across all sessions (default: 4)
	MaxConcurrent int `env:"GENERATOR_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a submission waits for a free slot (default: 10s)
	MaxWaitTime time.Duration `env:"GENERATOR_MAX_WAIT_TIME" default:"10s"`

	// ModelsFile optionally replaces the built-in model roster with a YAML file
	ModelsFile string `env:"GENERATOR_MODELS_FILE"`

	// OutputDir is where the CLI writes downloads (default: current directory)
	OutputDir string `env:"GENERATOR_OUTPUT_DIR" default:"."`
}

// UploadConfig holds seed file upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum seed CSV size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`
}

// PreviewConfig holds result preview settings.
type PreviewConfig struct {
	// RowCap is the number of data rows rendered in the preview (default: 2000)
	RowCap int `env:"PREVIEW_ROW_CAP" default:"2000"`
}

// DatabaseConfig holds optional database settings. When URL is empty the
// generation history is kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// HistoryConfig holds generation history retention settings.
type HistoryConfig struct {
	// Retention is how long history entries are kept (default: 720h = 30 days)
	Retention time.Duration `env:"HISTORY_RETENTION" default:"720h"`

	// PruneInterval is how often expired entries are deleted (default: 1h)
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" default:"1h"`

	// MemoryCapacity is the in-memory store size when no database is set (default: 1000)
	MemoryCapacity int `env:"HISTORY_MEMORY_CAPACITY" default:"1000"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// GenerateLimit is requests per minute for the generate endpoint (default: 10)
	GenerateLimit int `env:"RATE_LIMIT_GENERATE" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of origins allowed to call /api
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
