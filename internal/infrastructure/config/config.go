package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Remote      RemoteConfig
	Persistence PersistenceConfig
	Health      HealthConfig
	Registry    RegistryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// StorageConfig holds the durable local tier settings.
type StorageConfig struct {
	DataDir     string `envconfig:"DATA_DIR" default:"./data"`
	Compression bool   `envconfig:"STORAGE_COMPRESSION" default:"true"`
}

// RemoteConfig selects the remote layout store.
// Backend is "none", "http" (a store served by another process) or "sqlite".
type RemoteConfig struct {
	Backend string        `envconfig:"REMOTE_BACKEND" default:"none"`
	URL     string        `envconfig:"REMOTE_URL"`
	Token   string        `envconfig:"REMOTE_TOKEN"`
	DBPath  string        `envconfig:"REMOTE_DB_PATH"`
	Timeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`
	Retries int           `envconfig:"REMOTE_RETRIES" default:"2"`
}

// PersistenceConfig holds write scheduling.
type PersistenceConfig struct {
	Debounce      time.Duration `envconfig:"PERSIST_DEBOUNCE" default:"1s"`
	FlushInterval time.Duration `envconfig:"PERSIST_INTERVAL" default:"30s"`
	FlushTimeout  time.Duration `envconfig:"PERSIST_SHUTDOWN_TIMEOUT" default:"5s"`
}

// HealthConfig holds the default probe timeout for remote components.
type HealthConfig struct {
	Timeout time.Duration `envconfig:"HEALTH_TIMEOUT" default:"5s"`
}

// RegistryConfig holds module manifest discovery.
type RegistryConfig struct {
	ManifestDir string `envconfig:"MODULES_DIR"`
	Watch       bool   `envconfig:"MODULES_WATCH" default:"true"`
}

// Remote backends
const (
	BackendNone   = "none"
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case BackendNone, BackendSQLite:
	case BackendHTTP:
		if c.Remote.URL == "" {
			return fmt.Errorf("REMOTE_URL is required for the http backend")
		}
	default:
		return fmt.Errorf("unknown remote backend %q", c.Remote.Backend)
	}
	if c.Persistence.Debounce <= 0 || c.Persistence.FlushInterval <= 0 {
		return fmt.Errorf("persistence intervals must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			Compression: true,
		},
		Remote: RemoteConfig{
			Backend: BackendNone,
			Timeout: 10 * time.Second,
			Retries: 2,
		},
		Persistence: PersistenceConfig{
			Debounce:      time.Second,
			FlushInterval: 30 * time.Second,
			FlushTimeout:  5 * time.Second,
		},
		Health: HealthConfig{
			Timeout: 5 * time.Second,
		},
		Registry: RegistryConfig{
			Watch: true,
		},
	}
}
