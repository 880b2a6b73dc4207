// Package main is the entry point for the workspace server.
//
// The server keeps each user's tabbed workspace: layouts, tabs, their
// modules and module health. State is written through a durable local tier,
// an optional shared remote store and a volatile active-tab tier.
//
// Commands:
//   - serve: workspace REST API, event stream and metrics
//   - store: the shared layout store that "serve --remote http" talks to
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Standalone workspace server
//	./server serve --port 8000 --data-dir ./data
//
//	# Shared store plus a workspace server using it
//	./server store --port 9000 --db ./store.db
//	./server serve --remote http --remote-url http://localhost:9000
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, flushing every workspace
package main
