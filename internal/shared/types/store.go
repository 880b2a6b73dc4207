package types

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a storage tier that holds nothing for the key
	ErrNotFound = errors.New("not found")
	// ErrStale is returned when a write is older than the stored copy
	ErrStale = errors.New("stale write: stored layout is newer")
)

// Pointer is the remote record of which layouts are active and default
type Pointer struct {
	ActiveLayoutID  string    `json:"active_layout_id"`
	DefaultLayoutID string    `json:"default_layout_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}
