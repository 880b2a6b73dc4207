// Package remote implements the multi-device remote tier.
//
// Backend is the store contract (get, put, delete, list plus the
// active/default pointer). Three implementations exist:
//   - Client: HTTP client for a remote store API (resty over a retryablehttp
//     transport, guarded by a circuit breaker)
//   - SQLiteStore: server-side persistence
//   - MemoryStore: in-process store for development and tests
//
// Concurrent writers are resolved last-writer-wins by Layout.UpdatedAt; an
// older write is rejected with ErrStale and never overwrites newer data.
package remote
