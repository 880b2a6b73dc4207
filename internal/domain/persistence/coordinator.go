package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Trigger names why a flush ran
type Trigger string

const (
	TriggerDebounce Trigger = "debounce"
	TriggerPeriodic Trigger = "periodic"
	TriggerShutdown Trigger = "shutdown"
	TriggerManual   Trigger = "manual"
)

// Config tunes write coalescing and remote timeouts
type Config struct {
	Debounce        time.Duration
	FlushInterval   time.Duration
	ShutdownTimeout time.Duration
	RemoteTimeout   time.Duration
}

// DefaultConfig returns the standard write policy
func DefaultConfig() Config {
	return Config{
		Debounce:        time.Second,
		FlushInterval:   30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		RemoteTimeout:   10 * time.Second,
	}
}

// Options wires a Coordinator
type Options struct {
	User            string
	DefaultLayoutID string
	Local           LocalTier
	Remote          RemoteTier // Optional
	Volatile        VolatileTier
	Config          Config
	Logger          *logging.Logger
	Metrics         *monitoring.Metrics
}

// Coordinator mirrors one user's Layout Store into the storage tiers.
// Local writes happen inside Flush; remote pushes run in the background
// except on shutdown.
type Coordinator struct {
	user      string
	defaultID string
	cfg       Config
	local     LocalTier
	remote    RemoteTier
	volatile  VolatileTier
	log       *logging.Logger
	metrics   *monitoring.Metrics

	source Snapshotter

	mu          sync.Mutex
	timer       *time.Timer
	dirty       bool
	closed      bool
	pushRunning bool
	pushPending bool
	state       types.SyncState
	observers   []func(types.SyncState)

	flushMu sync.Mutex // Orders snapshot+save pairs

	remoteMu sync.Mutex           // Serialises remote pushes
	pushed   map[string]time.Time // Layout ID -> UpdatedAt last accepted remotely
	pointer  *types.Pointer       // Last pointer accepted remotely

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordinator for one user
func New(opts Options) (*Coordinator, error) {
	if opts.User == "" {
		return nil, errors.New("user is required")
	}
	if opts.Local == nil {
		return nil, errors.New("local tier is required")
	}
	if opts.Volatile == nil {
		return nil, errors.New("volatile tier is required")
	}

	cfg := opts.Config
	defaults := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaults.RemoteTimeout
	}

	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	return &Coordinator{
		user:      opts.User,
		defaultID: opts.DefaultLayoutID,
		cfg:       cfg,
		local:     opts.Local,
		remote:    opts.Remote,
		volatile:  opts.Volatile,
		log:       log.Named("persistence").ForUser(opts.User),
		metrics:   opts.Metrics,
		state:     types.SyncState{RemoteEnabled: opts.Remote != nil},
		pushed:    make(map[string]time.Time),
		stop:      make(chan struct{}),
	}, nil
}

// Attach sets the snapshot source. It must be called before Schedule or Flush.
func (c *Coordinator) Attach(source Snapshotter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
}

// Schedule marks the state dirty and (re)arms the debounce timer
func (c *Coordinator) Schedule(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.dirty = true
	if c.timer == nil {
		c.timer = time.AfterFunc(c.cfg.Debounce, c.onDebounce)
	} else {
		c.timer.Reset(c.cfg.Debounce)
	}
	c.log.Debug("write scheduled", zap.String("reason", reason))
}

func (c *Coordinator) onDebounce() {
	if err := c.Flush(context.Background(), TriggerDebounce); err != nil {
		c.log.Warn("debounced flush failed", zap.Error(err))
	}
}

// Dirty reports whether changes are waiting for a flush
func (c *Coordinator) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// SetActiveTab writes the volatile tier immediately
func (c *Coordinator) SetActiveTab(layoutID, tabID string) {
	c.volatile.SetActiveTab(c.user, layoutID, tabID)
}

// Flush writes the latest snapshot to the local tier and pushes it to the
// remote tier. Debounced and periodic flushes are skipped when nothing
// changed. Only the local write's error is returned; remote failures are
// logged and reflected in SyncState.
func (c *Coordinator) Flush(ctx context.Context, trigger Trigger) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	source := c.source
	if source == nil {
		c.mu.Unlock()
		return errors.New("no snapshot source attached")
	}
	if !c.dirty && (trigger == TriggerDebounce || trigger == TriggerPeriodic) {
		c.mu.Unlock()
		return nil
	}
	c.dirty = false
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	record := source.Snapshot()

	timer := monitoring.NewTimer(c.metrics, "local")
	err := c.local.Save(c.user, record)
	timer.Stop(err)
	c.metrics.RecordFlush(string(trigger))

	now := time.Now()
	c.updateState(func(s *types.SyncState) {
		s.LastFlush = &now
		if err != nil {
			s.LastError = err.Error()
		}
	})
	if err != nil {
		// Keep the snapshot pending so the next periodic tick retries it
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		c.log.Warn("local write failed", zap.String("trigger", string(trigger)), zap.Error(err))
		err = fmt.Errorf("local tier: %w", err)
	} else {
		c.log.Debug("flushed", zap.String("trigger", string(trigger)), zap.Int("layouts", len(record.Layouts)))
	}

	if c.remote == nil {
		return err
	}
	if trigger == TriggerShutdown {
		if rerr := c.pushRemote(ctx, record); rerr != nil {
			c.log.Warn("shutdown remote push failed", zap.Error(rerr))
		}
		return err
	}
	c.pushAsync()
	return err
}

// pushAsync starts a background push, or marks one pending if a push is running.
// The running push re-snapshots, so the remote always converges on the latest state.
func (c *Coordinator) pushAsync() {
	c.mu.Lock()
	if c.pushRunning {
		c.pushPending = true
		c.mu.Unlock()
		return
	}
	c.pushRunning = true
	source := c.source
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RemoteTimeout)
			if err := c.pushRemote(ctx, source.Snapshot()); err != nil {
				c.log.Warn("remote push failed", zap.Error(err))
			}
			cancel()

			c.mu.Lock()
			if !c.pushPending {
				c.pushRunning = false
				c.mu.Unlock()
				return
			}
			c.pushPending = false
			c.mu.Unlock()
		}
	}()
}

// pushRemote sends layouts whose UpdatedAt changed since the last accepted
// push, deletes layouts that disappeared, and updates the pointer.
// The seed default is never pushed.
func (c *Coordinator) pushRemote(ctx context.Context, record types.Record) error {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()

	c.updateState(func(s *types.SyncState) { s.WriteInFlight = true })
	timer := monitoring.NewTimer(c.metrics, "remote")

	var errs error
	present := make(map[string]struct{}, len(record.Layouts))
	for _, l := range record.Layouts {
		if l.IsDefault || l.ID == record.DefaultLayoutID {
			continue
		}
		present[l.ID] = struct{}{}
		if at, ok := c.pushed[l.ID]; ok && at.Equal(l.UpdatedAt) {
			continue
		}
		err := c.remote.Put(ctx, c.user, l)
		if err == nil || isStale(err) {
			c.pushed[l.ID] = l.UpdatedAt
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("put %s: %w", l.ID, err))
	}

	for layoutID := range c.pushed {
		if _, ok := present[layoutID]; ok {
			continue
		}
		if err := c.remote.Delete(ctx, c.user, layoutID); err != nil && !errors.Is(err, types.ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", layoutID, err))
			continue
		}
		delete(c.pushed, layoutID)
	}

	if pt, ok := c.remote.(PointerTier); ok && record.ActiveLayoutID != "" {
		next := types.Pointer{
			ActiveLayoutID:  record.ActiveLayoutID,
			DefaultLayoutID: record.DefaultLayoutID,
			UpdatedAt:       record.SavedAt,
		}
		if c.pointer == nil || c.pointer.ActiveLayoutID != next.ActiveLayoutID || c.pointer.DefaultLayoutID != next.DefaultLayoutID {
			if err := pt.PutPointer(ctx, c.user, next); err != nil && !isStale(err) {
				errs = multierr.Append(errs, fmt.Errorf("put pointer: %w", err))
			} else {
				c.pointer = &next
			}
		}
	}

	timer.Stop(errs)
	now := time.Now()
	c.updateState(func(s *types.SyncState) {
		s.WriteInFlight = false
		s.RemoteReachable = errs == nil
		if errs == nil {
			s.LastRemoteSync = &now
		} else {
			s.LastError = errs.Error()
		}
	})
	return errs
}

// Start runs the periodic safety flush until ctx ends or Close is called
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				if !c.Dirty() {
					continue
				}
				if err := c.Flush(ctx, TriggerPeriodic); err != nil {
					c.log.Warn("periodic flush failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close stops the timers and performs the shutdown flush, pushing to the
// remote tier synchronously within ShutdownTimeout
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	attached := c.source != nil
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if attached {
		err = c.Flush(ctx, TriggerShutdown)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for background writes: %w", ctx.Err()))
	}
	return err
}

// SyncState returns a copy of the remote sync status
func (c *Coordinator) SyncState() types.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnSyncState registers fn for sync status changes
func (c *Coordinator) OnSyncState(fn func(types.SyncState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Coordinator) updateState(mutate func(*types.SyncState)) {
	c.mu.Lock()
	mutate(&c.state)
	state := c.state
	observers := make([]func(types.SyncState), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func isStale(err error) bool {
	return errors.Is(err, types.ErrStale)
}
