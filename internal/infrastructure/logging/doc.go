// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Log Levels:
//   - Debug: Verbose debugging information
//   - Info: General informational messages
//   - Warn: Warning messages
//   - Error: Error messages
//   - Fatal: Fatal errors (exits process)
//
// Features:
//   - Structured fields for context
//   - Component and per-user child loggers (Named, ForUser)
//   - No-op logger for tests
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.ForUser("alice").Info("Workspace flushed", zap.String("trigger", "debounce"))
//	logger.Error("Failed to connect", zap.Error(err))
package logging
