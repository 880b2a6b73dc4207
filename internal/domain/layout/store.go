package layout

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/multierr"
)

// ChangeKind classifies a store mutation
type ChangeKind string

const (
	ChangeTabAdded      ChangeKind = "tab_added"
	ChangeTabRemoved    ChangeKind = "tab_removed"
	ChangeTabUpdated    ChangeKind = "tab_updated"
	ChangeTabsReordered ChangeKind = "tabs_reordered"
	ChangeActiveTab     ChangeKind = "active_tab"
	ChangeLayoutSaved   ChangeKind = "layout_saved"
	ChangeLayoutLoaded  ChangeKind = "layout_loaded"
	ChangeLayoutDeleted ChangeKind = "layout_deleted"
	ChangeReset         ChangeKind = "reset"
	ChangeHydrated      ChangeKind = "hydrated"
)

// Durable reports whether the change alters the durable record.
// Active-tab moves only touch the volatile tier.
func (k ChangeKind) Durable() bool {
	return k != ChangeActiveTab && k != ChangeHydrated
}

// SwitchesLayout reports whether the current layout was replaced wholesale
func (k ChangeKind) SwitchesLayout() bool {
	switch k {
	case ChangeLayoutSaved, ChangeLayoutLoaded, ChangeLayoutDeleted, ChangeReset, ChangeHydrated:
		return true
	}
	return false
}

// Change describes one applied mutation
type Change struct {
	Kind          ChangeKind `json:"kind"`
	LayoutID      string     `json:"layout_id"` // Current layout after the change
	TabID         string     `json:"tab_id,omitempty"`
	ActiveTabID   string     `json:"active_tab_id"`
	ModuleChanged bool       `json:"module_changed,omitempty"` // Set when an update replaced the tab's module reference
}

// TabSpec describes a tab to append
type TabSpec struct {
	Name          string
	ModuleRef     types.ModuleRef
	Kind          types.TabKind // Defaults to static
	Closable      *bool         // Defaults to true
	GridLayout    json.RawMessage
	SubComponents []types.SubComponent
}

// TabPatch is a shallow merge; nil fields are left untouched
type TabPatch struct {
	Name          *string
	ModuleRef     *types.ModuleRef
	Kind          *types.TabKind
	Closable      *bool
	GridLayout    *json.RawMessage
	EditMode      *bool
	SubComponents *[]types.SubComponent
}

// Bool returns a pointer to b
func Bool(b bool) *bool { return &b }

// String returns a pointer to s
func String(s string) *string { return &s }

type observer struct {
	id int
	fn func(Change)
}

// Store is the in-memory source of truth for one user's tabs and layouts.
// Mutations are synchronous and perform no I/O; observers are notified after
// the lock is released, in the order the mutations were applied.
type Store struct {
	mu         sync.RWMutex
	seed       types.Layout   // Pristine default, never mutated
	layouts    []types.Layout // Seed first, then user layouts
	current    types.Layout   // Working copy
	activeTab  string
	remembered map[string]string // Layout ID -> last active tab
	pending    []Change          // Protected by mu

	emitMu    sync.Mutex
	obsMu     sync.RWMutex
	observers []observer
	nextObs   int

	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for updatedAt stamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store seeded with the given default layout.
// An invalid seed is the only construction failure.
func NewStore(seed types.Layout, opts ...Option) (*Store, error) {
	if err := ValidateLayout(&seed); err != nil {
		return nil, fmt.Errorf("default layout: %w", err)
	}
	seed = seed.Clone()
	seed.IsDefault = true

	s := &Store{
		seed:       seed,
		layouts:    []types.Layout{seed.Clone()},
		current:    seed.Clone(),
		activeTab:  seed.FirstTabID(),
		remembered: make(map[string]string),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Observe registers fn for every applied change and returns a function that removes it.
// Observers may read the store but must not mutate it.
func (s *Store) Observe(fn func(Change)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextObs++
	obsID := s.nextObs
	s.observers = append(s.observers, observer{id: obsID, fn: fn})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == obsID {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// AddTab appends a tab to the current layout and makes it active
func (s *Store) AddTab(spec TabSpec) types.Tab {
	kind := spec.Kind
	if kind == "" {
		kind = types.TabKindStatic
	}
	closable := true
	if spec.Closable != nil {
		closable = *spec.Closable
	}

	tab := types.Tab{
		ID:         string(id.NewTabID()),
		Name:       spec.Name,
		ModuleRef:  spec.ModuleRef.Clone(),
		Kind:       kind,
		Closable:   closable,
		GridLayout: cloneRaw(spec.GridLayout),
	}
	for _, sc := range spec.SubComponents {
		tab.SubComponents = append(tab.SubComponents, sc.Clone())
	}

	s.mu.Lock()
	s.current.Tabs = append(s.current.Tabs, tab)
	s.activeTab = tab.ID
	s.touchLocked()
	s.queueLocked(Change{Kind: ChangeTabAdded, TabID: tab.ID})
	s.mu.Unlock()

	s.emit()
	return tab.Clone()
}

// RemoveTab removes a tab. Non-closable tabs and the last tab are left in
// place and false is returned.
func (s *Store) RemoveTab(tabID string) bool {
	s.mu.Lock()
	idx := s.current.TabIndex(tabID)
	if idx < 0 || !s.current.Tabs[idx].Closable || len(s.current.Tabs) <= 1 {
		s.mu.Unlock()
		return false
	}

	s.current.Tabs = append(s.current.Tabs[:idx], s.current.Tabs[idx+1:]...)
	if s.activeTab == tabID {
		s.activeTab = s.current.FirstTabID()
	}
	s.touchLocked()
	s.queueLocked(Change{Kind: ChangeTabRemoved, TabID: tabID})
	s.mu.Unlock()

	s.emit()
	return true
}

// UpdateTab shallow-merges patch into a tab
func (s *Store) UpdateTab(tabID string, patch TabPatch) (types.Tab, bool) {
	s.mu.Lock()
	idx := s.current.TabIndex(tabID)
	if idx < 0 {
		s.mu.Unlock()
		return types.Tab{}, false
	}

	tab := &s.current.Tabs[idx]
	moduleChanged := false
	if patch.Name != nil {
		tab.Name = *patch.Name
	}
	if patch.ModuleRef != nil {
		moduleChanged = patch.ModuleRef.Key() != tab.ModuleRef.Key()
		tab.ModuleRef = patch.ModuleRef.Clone()
	}
	if patch.Kind != nil {
		tab.Kind = *patch.Kind
	}
	if patch.Closable != nil {
		tab.Closable = *patch.Closable
	}
	if patch.GridLayout != nil {
		tab.GridLayout = cloneRaw(*patch.GridLayout)
	}
	if patch.EditMode != nil {
		tab.EditMode = *patch.EditMode
	}
	if patch.SubComponents != nil {
		subs := make([]types.SubComponent, len(*patch.SubComponents))
		for i, sc := range *patch.SubComponents {
			subs[i] = sc.Clone()
		}
		tab.SubComponents = subs
	}
	updated := tab.Clone()

	s.touchLocked()
	s.queueLocked(Change{Kind: ChangeTabUpdated, TabID: tabID, ModuleChanged: moduleChanged})
	s.mu.Unlock()

	s.emit()
	return updated, true
}

// ReorderTabs replaces the tab order atomically
func (s *Store) ReorderTabs(order []string) error {
	s.mu.Lock()
	if len(order) != len(s.current.Tabs) {
		s.mu.Unlock()
		return ErrInvalidOrder
	}

	byID := make(map[string]types.Tab, len(s.current.Tabs))
	for _, tab := range s.current.Tabs {
		byID[tab.ID] = tab
	}
	reordered := make([]types.Tab, 0, len(order))
	for _, tabID := range order {
		tab, ok := byID[tabID]
		if !ok {
			s.mu.Unlock()
			return ErrInvalidOrder
		}
		delete(byID, tabID)
		reordered = append(reordered, tab)
	}

	s.current.Tabs = reordered
	s.touchLocked()
	s.queueLocked(Change{Kind: ChangeTabsReordered})
	s.mu.Unlock()

	s.emit()
	return nil
}

// SetActiveTab foregrounds a tab of the current layout
func (s *Store) SetActiveTab(tabID string) bool {
	s.mu.Lock()
	if !s.current.HasTab(tabID) {
		s.mu.Unlock()
		return false
	}
	if s.activeTab == tabID {
		s.mu.Unlock()
		return true
	}
	s.activeTab = tabID
	s.remembered[s.current.ID] = tabID
	s.queueLocked(Change{Kind: ChangeActiveTab, TabID: tabID})
	s.mu.Unlock()

	s.emit()
	return true
}

// SaveCurrentLayout clones the current tabs into a new user layout and makes it current.
// Tabs receive fresh ids so ids stay unique across the user's layouts.
func (s *Store) SaveCurrentLayout(name string) types.Layout {
	s.mu.Lock()
	s.remembered[s.current.ID] = s.activeTab

	saved := types.Layout{
		ID:        string(id.NewLayoutID()),
		Name:      name,
		UpdatedAt: s.now(),
		Tabs:      make([]types.Tab, len(s.current.Tabs)),
	}
	active := ""
	for i, tab := range s.current.Tabs {
		clone := tab.Clone()
		clone.ID = string(id.NewTabID())
		if tab.ID == s.activeTab {
			active = clone.ID
		}
		saved.Tabs[i] = clone
	}
	if active == "" {
		active = saved.FirstTabID()
	}

	s.layouts = append(s.layouts, saved.Clone())
	s.current = saved.Clone()
	s.activeTab = active
	s.remembered[saved.ID] = active
	s.queueLocked(Change{Kind: ChangeLayoutSaved, TabID: active})
	s.mu.Unlock()

	s.emit()
	return saved
}

// LoadLayout makes a stored layout current
func (s *Store) LoadLayout(layoutID string) bool {
	s.mu.Lock()
	idx := s.layoutIndexLocked(layoutID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.switchLocked(s.layouts[idx].Clone())
	s.queueLocked(Change{Kind: ChangeLayoutLoaded, TabID: s.activeTab})
	s.mu.Unlock()

	s.emit()
	return true
}

// DeleteLayout removes a user layout. The default layout cannot be deleted.
// Deleting the current layout switches to the default.
func (s *Store) DeleteLayout(layoutID string) bool {
	s.mu.Lock()
	idx := s.layoutIndexLocked(layoutID)
	if idx < 0 || layoutID == s.seed.ID {
		s.mu.Unlock()
		return false
	}

	s.layouts = append(s.layouts[:idx], s.layouts[idx+1:]...)
	if s.current.ID == layoutID {
		s.switchLocked(s.seed.Clone())
	}
	delete(s.remembered, layoutID)
	s.queueLocked(Change{Kind: ChangeLayoutDeleted, TabID: s.activeTab})
	s.mu.Unlock()

	s.emit()
	return true
}

// ResetToDefault discards the working copy and returns to the pristine seed.
// Saved user layouts are kept.
func (s *Store) ResetToDefault() {
	s.mu.Lock()
	delete(s.remembered, s.seed.ID)
	s.current = s.seed.Clone()
	s.current.UpdatedAt = s.now()
	s.activeTab = s.current.FirstTabID()
	s.queueLocked(Change{Kind: ChangeReset, TabID: s.activeTab})
	s.mu.Unlock()

	s.emit()
}

// Hydrate replaces the store contents with a persisted record. Layouts that
// break an invariant are dropped and reported in the returned error; the
// rest of the record is still applied.
func (s *Store) Hydrate(record types.Record, activeTab string) error {
	var errs error

	layouts := []types.Layout{s.seed.Clone()}
	for i := range record.Layouts {
		l := record.Layouts[i]
		if l.IsDefault || l.ID == s.seed.ID {
			continue
		}
		if err := ValidateLayout(&l); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		layouts = append(layouts, l.Clone())
	}

	s.mu.Lock()
	s.layouts = layouts

	var current *types.Layout
	if record.Current != nil {
		if err := ValidateLayout(record.Current); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("working copy: %w", err))
		} else if record.Current.ID == s.seed.ID || s.layoutIndexLocked(record.Current.ID) >= 0 {
			c := record.Current.Clone()
			c.IsDefault = c.ID == s.seed.ID
			current = &c
		}
	}
	if current == nil {
		if idx := s.layoutIndexLocked(record.ActiveLayoutID); idx >= 0 {
			c := s.layouts[idx].Clone()
			current = &c
		}
	}
	if current == nil {
		c := s.seed.Clone()
		current = &c
	}

	s.current = *current
	s.syncUserLayoutLocked()
	s.activeTab = s.current.FirstTabID()
	if activeTab != "" && s.current.HasTab(activeTab) {
		s.activeTab = activeTab
	}
	s.remembered[s.current.ID] = s.activeTab
	s.queueLocked(Change{Kind: ChangeHydrated, TabID: s.activeTab})
	s.mu.Unlock()

	s.emit()
	return errs
}

// Snapshot returns the durable record for the current state.
// The seed layout is never part of Layouts.
func (s *Store) Snapshot() types.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := types.Record{
		Layouts:         make([]types.Layout, 0, len(s.layouts)-1),
		ActiveLayoutID:  s.current.ID,
		DefaultLayoutID: s.seed.ID,
		SavedAt:         s.now(),
	}
	for _, l := range s.layouts {
		if l.ID == s.seed.ID {
			continue
		}
		record.Layouts = append(record.Layouts, l.Clone())
	}
	current := s.current.Clone()
	record.Current = &current
	return record
}

// Current returns a copy of the current layout
func (s *Store) Current() types.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Layouts returns copies of all layouts, default first
func (s *Store) Layouts() []types.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Layout, len(s.layouts))
	for i, l := range s.layouts {
		out[i] = l.Clone()
	}
	return out
}

// ActiveTabID returns the foregrounded tab of the current layout
func (s *Store) ActiveTabID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTab
}

// Tab returns a copy of a tab in the current layout
func (s *Store) Tab(tabID string) (types.Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.current.TabIndex(tabID)
	if idx < 0 {
		return types.Tab{}, false
	}
	return s.current.Tabs[idx].Clone(), true
}

// DefaultLayoutID returns the id of the seed layout
func (s *Store) DefaultLayoutID() string {
	return s.seed.ID
}

// Default returns a copy of the pristine seed
func (s *Store) Default() types.Layout {
	return s.seed.Clone()
}

func (s *Store) layoutIndexLocked(layoutID string) int {
	for i := range s.layouts {
		if s.layouts[i].ID == layoutID {
			return i
		}
	}
	return -1
}

// switchLocked replaces the current layout, restoring a remembered tab when it still resolves
func (s *Store) switchLocked(next types.Layout) {
	s.remembered[s.current.ID] = s.activeTab
	s.current = next

	s.activeTab = s.current.FirstTabID()
	if remembered, ok := s.remembered[next.ID]; ok && s.current.HasTab(remembered) {
		s.activeTab = remembered
	}
}

// touchLocked stamps the current layout and writes user layouts through
func (s *Store) touchLocked() {
	s.current.UpdatedAt = s.now()
	s.syncUserLayoutLocked()
}

func (s *Store) syncUserLayoutLocked() {
	if s.current.ID == s.seed.ID {
		return
	}
	if idx := s.layoutIndexLocked(s.current.ID); idx >= 0 {
		s.layouts[idx] = s.current.Clone()
	}
}

func (s *Store) queueLocked(c Change) {
	c.LayoutID = s.current.ID
	c.ActiveTabID = s.activeTab
	s.pending = append(s.pending, c)
}

// emit drains queued changes to observers outside the state lock
func (s *Store) emit() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	changes := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(changes) == 0 {
		return
	}

	s.obsMu.RLock()
	observers := make([]observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, c := range changes {
		for _, o := range observers {
			o.fn(c)
		}
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
