package persistence

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
)

// LocalTier is durable storage on this device, keyed by user.
// A miss is (zero, false, nil); a corrupt record is an error.
type LocalTier interface {
	Load(user string) (types.Record, bool, error)
	Save(user string, record types.Record) error
}

// BackupLoader is implemented by local tiers that keep a secondary copy
type BackupLoader interface {
	LoadBackup(user string) (types.Record, bool, error)
}

// RemoteTier is the multi-device store. Get returns types.ErrNotFound for
// an unknown user.
type RemoteTier interface {
	Get(ctx context.Context, user string) ([]types.Layout, error)
	Put(ctx context.Context, user string, layout types.Layout) error
	Delete(ctx context.Context, user, layoutID string) error
	List(ctx context.Context, user string) ([]types.Layout, error)
}

// PointerTier is implemented by remote tiers that also hold the
// active/default layout pointer
type PointerTier interface {
	GetPointer(ctx context.Context, user string) (types.Pointer, error)
	PutPointer(ctx context.Context, user string, pointer types.Pointer) error
}

// VolatileTier remembers the active tab per layout for the life of the process
type VolatileTier interface {
	ActiveTab(user, layoutID string) (string, bool)
	SetActiveTab(user, layoutID, tabID string)
}

// Snapshotter produces the durable record to write
type Snapshotter interface {
	Snapshot() types.Record
}
