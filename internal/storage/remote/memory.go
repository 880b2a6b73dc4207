package remote

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
)

type userLayouts struct {
	order   []string
	layouts map[string]types.Layout
	pointer *types.Pointer
}

// MemoryStore is an in-process Backend for development and tests
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userLayouts
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userLayouts)}
}

// Get returns the user's layouts
func (m *MemoryStore) Get(ctx context.Context, user string) ([]types.Layout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[user]
	if !ok || (len(u.order) == 0 && u.pointer == nil) {
		return nil, ErrNotFound
	}
	return u.list(), nil
}

// List returns the user's layouts, empty when unknown
func (m *MemoryStore) List(ctx context.Context, user string) ([]types.Layout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[user]
	if !ok {
		return []types.Layout{}, nil
	}
	return u.list(), nil
}

// Put stores a layout, last writer wins
func (m *MemoryStore) Put(ctx context.Context, user string, layout types.Layout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.userLocked(user)
	if existing, ok := u.layouts[layout.ID]; ok {
		if layout.UpdatedAt.Before(existing.UpdatedAt) {
			return ErrStale
		}
	} else {
		u.order = append(u.order, layout.ID)
	}
	u.layouts[layout.ID] = layout.Clone()
	return nil
}

// Delete removes a layout
func (m *MemoryStore) Delete(ctx context.Context, user, layoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[user]
	if !ok {
		return nil
	}
	if _, ok := u.layouts[layoutID]; !ok {
		return nil
	}
	delete(u.layouts, layoutID)
	for i, id := range u.order {
		if id == layoutID {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetPointer returns the user's pointer
func (m *MemoryStore) GetPointer(ctx context.Context, user string) (types.Pointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[user]
	if !ok || u.pointer == nil {
		return types.Pointer{}, ErrNotFound
	}
	return *u.pointer, nil
}

// PutPointer stores the user's pointer, last writer wins
func (m *MemoryStore) PutPointer(ctx context.Context, user string, pointer types.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.userLocked(user)
	if u.pointer != nil && pointer.UpdatedAt.Before(u.pointer.UpdatedAt) {
		return ErrStale
	}
	u.pointer = &pointer
	return nil
}

func (m *MemoryStore) userLocked(user string) *userLayouts {
	u, ok := m.users[user]
	if !ok {
		u = &userLayouts{layouts: make(map[string]types.Layout)}
		m.users[user] = u
	}
	return u
}

func (u *userLayouts) list() []types.Layout {
	out := make([]types.Layout, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.layouts[id].Clone())
	}
	return out
}
