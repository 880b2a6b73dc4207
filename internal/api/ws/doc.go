// Package ws streams workspace events to clients over WebSocket.
//
// A connection to /workspaces/:user/stream receives a snapshot first and
// then every layout, module resolution and sync event of that user's
// session. Clients may send {"type":"ping"} or {"type":"snapshot"}.
// A single writer goroutine owns the connection; slow clients lose events
// rather than stall the session.
package ws
