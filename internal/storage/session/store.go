// Package session implements the volatile tier holding each user's last
// active tab per layout. Contents live only as long as the process.
package session

import "sync"

// Store maps user -> layout -> active tab id
type Store struct {
	mu     sync.RWMutex
	active map[string]map[string]string
}

// NewStore creates an empty volatile tier
func NewStore() *Store {
	return &Store{active: make(map[string]map[string]string)}
}

// ActiveTab returns the remembered tab for a user's layout
func (s *Store) ActiveTab(user, layoutID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tabID, ok := s.active[user][layoutID]
	return tabID, ok
}

// SetActiveTab remembers the active tab for a user's layout
func (s *Store) SetActiveTab(user, layoutID, tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layouts, ok := s.active[user]
	if !ok {
		layouts = make(map[string]string)
		s.active[user] = layouts
	}
	if tabID == "" {
		delete(layouts, layoutID)
		return
	}
	layouts[layoutID] = tabID
}

// Clear forgets everything remembered for a user
func (s *Store) Clear(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, user)
}
