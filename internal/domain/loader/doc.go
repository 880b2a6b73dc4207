// Package loader resolves a tab's module reference to renderable content.
//
// Local references are loaded from the registry:
//
//	resolving -> loading -> ready | error
//
// Network-hosted references are health-checked and rendered as a sandboxed
// frame:
//
//	resolving -> health_checking -> connected | error
//
// A network-hosted resolution keeps following its health monitor, so an
// errored module returns to connected on the next successful check. Every
// attempt is numbered and completions of superseded attempts are dropped.
// Render wraps module output in a per-tab isolation boundary.
package loader
