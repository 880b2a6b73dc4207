package remote

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
)

var (
	// ErrNotFound is returned when the store holds nothing for the user
	ErrNotFound = types.ErrNotFound
	// ErrStale is returned when a write is older than the stored copy
	ErrStale = types.ErrStale
)

// Backend is the remote layout store contract, keyed by user id.
// Writes are last-writer-wins by Layout.UpdatedAt.
type Backend interface {
	// Get returns the user's layouts, or ErrNotFound for an unknown user
	Get(ctx context.Context, user string) ([]types.Layout, error)
	// Put stores a layout unless a newer copy exists (ErrStale)
	Put(ctx context.Context, user string, layout types.Layout) error
	// Delete removes a layout; deleting a missing layout is not an error
	Delete(ctx context.Context, user, layoutID string) error
	// List returns the user's layouts, empty for an unknown user
	List(ctx context.Context, user string) ([]types.Layout, error)
	// GetPointer returns the active/default pointer, or ErrNotFound
	GetPointer(ctx context.Context, user string) (types.Pointer, error)
	// PutPointer stores the pointer unless a newer one exists (ErrStale)
	PutPointer(ctx context.Context, user string, pointer types.Pointer) error
}
