// Package middleware provides the HTTP middleware stack of the workspace API.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - RequestID: X-Request-ID propagation
//   - Logger: Structured request logging
//   - Recovery: Panic recovery with graceful error responses
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Recovery(log))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
