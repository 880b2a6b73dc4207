// Package config provides 12-factor configuration management for the workspace server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS origins)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Storage: Data directory of the durable local tier
//   - Remote: Remote layout store backend
//   - Persistence: Debounce and periodic flush intervals
//   - Health: Default probe timeout for remote components
//   - Registry: Module manifest directory
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Addr())
//
// Environment Variables:
//   - PORT, HOST, ALLOWED_ORIGINS, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - DATA_DIR, STORAGE_COMPRESSION
//   - REMOTE_BACKEND, REMOTE_URL, REMOTE_TOKEN, REMOTE_DB_PATH, REMOTE_TIMEOUT, REMOTE_RETRIES
//   - PERSIST_DEBOUNCE, PERSIST_INTERVAL, PERSIST_SHUTDOWN_TIMEOUT
//   - HEALTH_TIMEOUT, MODULES_DIR, MODULES_WATCH
package config
