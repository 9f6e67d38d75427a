package config

import "time"

// Config is the complete application configuration.
//
// Precedence, lowest first: built-in defaults, the YAML config file,
// NCBI_MCP_* environment variables, command-line flags.
type Config struct {
	NCBI      NCBIConfig      `mapstructure:"ncbi"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Composite CompositeConfig `mapstructure:"composite"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// NCBIConfig identifies this client to E-utilities.
type NCBIConfig struct {
	// APIKey raises the request budget from 3 to 10 per second.
	APIKey         string        `mapstructure:"api_key"`
	Email          string        `mapstructure:"email"`
	Tool           string        `mapstructure:"tool"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig tunes the outbound limiter.
type RateLimitConfig struct {
	// StrictWindow caps admissions within any rolling second, not just on average.
	StrictWindow bool `mapstructure:"strict_window"`
}

// SessionsConfig controls the history session cache.
type SessionsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// CompositeConfig tunes search_and_fetch.
type CompositeConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// CacheConfig controls the persistent EInfo cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	EInfoTTL time.Duration `mapstructure:"einfo_ttl"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ServerConfig contains MCP server settings. Port 0 selects stdio.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken enables POST /admin/signal when set.
	AdminToken      string        `mapstructure:"admin_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// UsesHTTP reports whether the server listens on a TCP port instead of stdio.
func (c ServerConfig) UsesHTTP() bool {
	return c.Port > 0
}
