package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/loader"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/persistence"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/zap"
)

// Options wires a Session
type Options struct {
	User        string
	Seed        *types.Layout // Defaults to layout.DefaultLayout()
	Local       persistence.LocalTier
	Remote      persistence.RemoteTier // Optional
	Volatile    persistence.VolatileTier
	Registry    loader.Registry
	NewMonitor  loader.MonitorFactory // Optional
	Persistence persistence.Config
	EventBuffer int
	Logger      *logging.Logger
	Metrics     *monitoring.Metrics
}

// Snapshot is the full observable state of a session
type Snapshot struct {
	User            string              `json:"user"`
	Current         types.Layout        `json:"current"`
	ActiveTabID     string              `json:"active_tab_id"`
	Layouts         []types.Layout      `json:"layouts"`
	DefaultLayoutID string              `json:"default_layout_id"`
	Sync            types.SyncState     `json:"sync"`
	Resolutions     []loader.Resolution `json:"resolutions"`
	Source          persistence.Source  `json:"bootstrap_source"`
}

// Session composes the Layout Store, Persistence Coordinator and Module
// Loader for one user
type Session struct {
	user    string
	store   *layout.Store
	coord   *persistence.Coordinator
	loader  *loader.Loader
	bus     *bus
	log     *logging.Logger
	metrics *monitoring.Metrics
	source  persistence.Source

	opMu      sync.Mutex // Serialises validate-then-mutate operations
	closed    bool       // Protected by opMu
	unobserve func()
	cancel    context.CancelFunc
	ctx       context.Context
}

// New bootstraps a session: reconcile the storage tiers, hydrate the store,
// restore the active tab, resolve the current tabs and start the periodic
// flush. An invalid seed layout is the only fatal condition.
func New(ctx context.Context, opts Options) (*Session, error) {
	seed := layout.DefaultLayout()
	if opts.Seed != nil {
		seed = opts.Seed.Clone()
	}
	if err := layout.ValidateLayout(&seed); err != nil {
		return nil, fmt.Errorf("default layout: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("workspace").ForUser(opts.User)

	store, err := layout.NewStore(seed)
	if err != nil {
		return nil, fmt.Errorf("default layout: %w", err)
	}

	coord, err := persistence.New(persistence.Options{
		User:            opts.User,
		DefaultLayoutID: seed.ID,
		Local:           opts.Local,
		Remote:          opts.Remote,
		Volatile:        opts.Volatile,
		Config:          opts.Persistence,
		Logger:          opts.Logger,
		Metrics:         opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	coord.Attach(store)

	result, err := coord.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Hydrate(result.Record, result.ActiveTabID); err != nil {
		log.Warn("dropped invalid persisted layouts", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		user:    opts.User,
		store:   store,
		coord:   coord,
		bus:     newBus(opts.EventBuffer, log),
		log:     log,
		metrics: opts.Metrics,
		source:  result.Source,
		cancel:  cancel,
		ctx:     runCtx,
	}

	s.loader, err = loader.New(loader.Options{
		Registry:   opts.Registry,
		NewMonitor: opts.NewMonitor,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
		OnChange: func(r loader.Resolution) {
			s.bus.publish(Event{Type: EventResolution, Resolution: &r})
		},
	})
	if err != nil {
		cancel()
		_ = coord.Close(ctx)
		return nil, err
	}

	coord.OnSyncState(func(state types.SyncState) {
		s.bus.publish(Event{Type: EventSync, Sync: &state})
	})
	s.unobserve = store.Observe(s.onChange)

	current := store.Current()
	coord.SetActiveTab(current.ID, store.ActiveTabID())
	for _, tab := range current.Tabs {
		s.loader.Resolve(runCtx, tab)
	}

	switch {
	case result.Source == persistence.SourceRemote || result.Source == persistence.SourceBackup:
		// Refresh the local primary from the tier that won
		coord.Schedule("bootstrap_" + string(result.Source))
	case result.Source == persistence.SourceLocal && opts.Remote != nil:
		// The remote tier had nothing newer; seed it from the local record
		coord.Schedule("bootstrap_local")
	}
	coord.Start(runCtx)

	log.Info("workspace session started",
		zap.String("source", string(result.Source)),
		zap.String("layout", current.ID),
		zap.Int("tabs", len(current.Tabs)))
	return s, nil
}

// onChange follows store mutations: schedule writes, remember the active
// tab and keep module resolutions in step with the current tabs
func (s *Session) onChange(change layout.Change) {
	if change.Kind.Durable() {
		s.coord.Schedule(string(change.Kind))
	}
	s.coord.SetActiveTab(change.LayoutID, change.ActiveTabID)

	switch {
	case change.Kind == layout.ChangeTabRemoved:
		s.loader.Release(change.TabID)
	case change.Kind == layout.ChangeTabAdded, change.Kind == layout.ChangeTabUpdated:
		if tab, ok := s.store.Tab(change.TabID); ok {
			s.loader.Resolve(s.ctx, tab)
		}
	case change.Kind.SwitchesLayout():
		s.reconcileResolutions()
	}

	c := change
	s.bus.publish(Event{Type: EventLayout, Change: &c})
}

func (s *Session) reconcileResolutions() {
	current := s.store.Current()
	for _, res := range s.loader.Resolutions() {
		if !current.HasTab(res.TabID) {
			s.loader.Release(res.TabID)
		}
	}
	for _, tab := range current.Tabs {
		s.loader.Resolve(s.ctx, tab)
	}
}

// User returns the session's user id
func (s *Session) User() string {
	return s.user
}

// Current returns a copy of the current layout
func (s *Session) Current() types.Layout {
	return s.store.Current()
}

// Layouts returns every layout, default first
func (s *Session) Layouts() []types.Layout {
	return s.store.Layouts()
}

// ActiveTabID returns the foregrounded tab
func (s *Session) ActiveTabID() string {
	return s.store.ActiveTabID()
}

// SyncState reports remote tier status
func (s *Session) SyncState() types.SyncState {
	return s.coord.SyncState()
}

// Snapshot returns the complete observable state
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		User:            s.user,
		Current:         s.store.Current(),
		ActiveTabID:     s.store.ActiveTabID(),
		Layouts:         s.store.Layouts(),
		DefaultLayoutID: s.store.DefaultLayoutID(),
		Sync:            s.coord.SyncState(),
		Resolutions:     s.loader.Resolutions(),
		Source:          s.source,
	}
}

// Subscribe returns a buffered event channel and its cancel func.
// The channel is closed on cancel or when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.bus.subscribe()
}

// Resolution returns the module resolution of a tab
func (s *Session) Resolution(tabID string) (loader.Resolution, bool) {
	return s.loader.Resolution(tabID)
}

// AwaitResolution blocks until the tab's module settles
func (s *Session) AwaitResolution(ctx context.Context, tabID string) (loader.Resolution, error) {
	return s.loader.Await(ctx, tabID)
}

// Render renders a tab of the current layout inside its isolation boundary
func (s *Session) Render(ctx context.Context, tabID string) (*types.View, error) {
	tab, ok := s.store.Tab(tabID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	return s.loader.Render(ctx, tab), nil
}

// RetryModule restarts a tab's module resolution
func (s *Session) RetryModule(ctx context.Context, tabID string) (loader.Resolution, error) {
	if _, ok := s.store.Tab(tabID); !ok {
		return loader.Resolution{}, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	return s.loader.Retry(s.ctx, tabID)
}

// Flush writes the current state through every tier now
func (s *Session) Flush(ctx context.Context) error {
	return s.op(func() error {
		return s.coord.Flush(ctx, persistence.TriggerManual)
	})
}

// Close flushes pending writes, stops module monitors and closes subscriber channels
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	if s.closed {
		s.opMu.Unlock()
		return nil
	}
	s.closed = true
	s.opMu.Unlock()

	start := time.Now()
	s.unobserve()
	s.loader.Close()
	err := s.coord.Close(ctx)
	s.cancel()
	s.bus.close()

	s.log.Info("workspace session closed", zap.Duration("duration", time.Since(start)), zap.Error(err))
	return err
}

// op runs fn under the operation lock unless the session is closed
func (s *Session) op(fn func() error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn()
}
