package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/health"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/zap"
)

// ErrUnknownTab is returned for tabs with no resolution
var ErrUnknownTab = errors.New("tab has no module resolution")

// State is a resolution attempt's position in the state machine
type State string

const (
	StateResolving      State = "resolving"
	StateHealthChecking State = "health_checking"
	StateLoading        State = "loading"
	StateReady          State = "ready"
	StateConnected      State = "connected"
	StateError          State = "error"
)

// Settled reports whether the state is terminal for the attempt
func (s State) Settled() bool {
	return s == StateReady || s == StateConnected || s == StateError
}

// Kind separates local modules from network-hosted ones
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Resolution is the observable state of one tab's module
type Resolution struct {
	TabID     string         `json:"tab_id"`
	Kind      Kind           `json:"kind"`
	State     State          `json:"state"`
	Attempt   uint64         `json:"attempt"`
	Module    string         `json:"module,omitempty"`
	Err       string         `json:"error,omitempty"`
	Frame     *types.Frame   `json:"frame,omitempty"`
	Health    *health.Report `json:"health,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Registry is the catalogue the loader resolves local modules from
type Registry interface {
	Load(ctx context.Context, id string) (registry.Module, error)
}

// Monitor is the liveness poller of one network-hosted module
type Monitor interface {
	Check(ctx context.Context) health.Report
	Start(ctx context.Context)
	Stop()
	Subscribe(fn func(health.Report)) func()
}

// MonitorFactory creates a monitor for a component link
type MonitorFactory func(link *types.ComponentLink) Monitor

// Options wires a Loader
type Options struct {
	Registry   Registry
	NewMonitor MonitorFactory
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
	OnChange   func(Resolution)
}

type slot struct {
	tab         types.Tab
	key         string
	res         Resolution
	module      registry.Module
	monitor     Monitor
	unsubscribe func()
	cancel      context.CancelFunc
	settled     chan struct{}
	settledOnce sync.Once
}

func (s *slot) markSettled() {
	s.settledOnce.Do(func() { close(s.settled) })
}

// Loader resolves tab module references. Each tab has at most one live
// attempt; completions of superseded attempts are discarded.
type Loader struct {
	reg        Registry
	newMonitor MonitorFactory
	log        *logging.Logger
	metrics    *monitoring.Metrics
	onChange   func(Resolution)

	mu      sync.Mutex
	tabs    map[string]*slot
	attempt uint64
	closed  bool
	wg      sync.WaitGroup
}

// New creates a loader
func New(opts Options) (*Loader, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}

	l := &Loader{
		reg:        opts.Registry,
		newMonitor: opts.NewMonitor,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		onChange:   opts.OnChange,
		tabs:       make(map[string]*slot),
	}
	if l.log == nil {
		l.log = logging.NewNop()
	}
	l.log = l.log.Named("loader")
	if l.newMonitor == nil {
		log, metrics := l.log, l.metrics
		l.newMonitor = func(link *types.ComponentLink) Monitor {
			return health.NewMonitor(link, health.WithLogger(log), health.WithMetrics(metrics))
		}
	}
	return l, nil
}

// Resolve starts resolving tab's module. An identical reference on an
// existing resolution is a no-op; a changed reference starts a new attempt.
// The attempt outlives ctx's cancellation and ends on Release or Close.
func (l *Loader) Resolve(ctx context.Context, tab types.Tab) Resolution {
	key := tab.ModuleRef.Key()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Resolution{TabID: tab.ID, State: StateError, Err: "loader closed"}
	}
	if s, ok := l.tabs[tab.ID]; ok && s.key == key {
		s.tab = tab.Clone()
		res := s.res
		l.mu.Unlock()
		return res
	}
	old := l.tabs[tab.ID]
	s, attemptCtx := l.startLocked(ctx, tab)
	res := s.res
	l.mu.Unlock()

	if old != nil {
		l.teardown(old)
	}
	l.run(attemptCtx, s, res)
	return res
}

// Retry restarts the tab's resolution with its current reference
func (l *Loader) Retry(ctx context.Context, tabID string) (Resolution, error) {
	l.mu.Lock()
	old, ok := l.tabs[tabID]
	if !ok || l.closed {
		l.mu.Unlock()
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownTab, tabID)
	}
	s, attemptCtx := l.startLocked(ctx, old.tab)
	res := s.res
	l.mu.Unlock()

	l.teardown(old)
	l.run(attemptCtx, s, res)
	return res, nil
}

// startLocked registers a new attempt for tab. The caller must follow up with run.
func (l *Loader) startLocked(ctx context.Context, tab types.Tab) (*slot, context.Context) {
	l.attempt++
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	kind := KindLocal
	module := tab.ModuleRef.Registry
	if !tab.ModuleRef.IsLocal() {
		kind = KindRemote
		module = tab.ModuleRef.Link.URL()
	}

	s := &slot{
		tab:     tab.Clone(),
		key:     tab.ModuleRef.Key(),
		cancel:  cancel,
		settled: make(chan struct{}),
		res: Resolution{
			TabID:     tab.ID,
			Kind:      kind,
			State:     StateResolving,
			Attempt:   l.attempt,
			Module:    module,
			UpdatedAt: time.Now(),
		},
	}
	l.tabs[tab.ID] = s
	l.wg.Add(1)
	return s, attemptCtx
}

func (l *Loader) run(ctx context.Context, s *slot, res Resolution) {
	l.notify(res)
	go func() {
		defer l.wg.Done()
		if res.Kind == KindLocal {
			l.loadLocal(ctx, s, res)
		} else {
			l.connect(ctx, s, res)
		}
	}()
}

func (l *Loader) notify(res Resolution) {
	l.metrics.RecordResolution(string(res.Kind), string(res.State))
	if l.onChange != nil {
		l.onChange(res)
	}
}

// loadLocal runs Resolving -> Loading -> Ready|Error
func (l *Loader) loadLocal(ctx context.Context, s *slot, res Resolution) {
	tabID, attempt, id := res.TabID, res.Attempt, res.Module
	if !l.update(tabID, attempt, func(s *slot) { s.res.State = StateLoading }) {
		return
	}

	mod, err := l.load(ctx, id)
	if ctx.Err() != nil {
		return
	}
	l.update(tabID, attempt, func(s *slot) {
		if err != nil {
			s.res.State = StateError
			s.res.Err = err.Error()
			return
		}
		s.module = mod
		s.res.State = StateReady
		s.res.Err = ""
	})
	if err != nil {
		l.log.Warn("module load failed", zap.String("tab", tabID), zap.String("module", id), zap.Error(err))
	}
}

func (l *Loader) load(ctx context.Context, id string) (mod registry.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("module loader panicked",
				zap.String("module", id),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("module %s panicked during load: %v", id, r)
		}
	}()
	return l.reg.Load(ctx, id)
}

// connect runs Resolving -> HealthChecking -> Connected|Error and keeps
// following the monitor so recovery is automatic
func (l *Loader) connect(ctx context.Context, s *slot, res Resolution) {
	tabID, attempt := res.TabID, res.Attempt
	l.mu.Lock()
	link := s.tab.ModuleRef.Link.Clone()
	l.mu.Unlock()

	frame, unknown := FrameFor(link)
	if len(unknown) > 0 {
		l.log.Warn("ignoring undeclared frame capabilities", zap.String("tab", tabID), zap.Strings("capabilities", unknown))
	}

	monitor := l.newMonitor(link)
	apply := func(report health.Report) {
		l.update(tabID, attempt, func(s *slot) {
			r := report
			s.res.Health = &r
			switch report.Status {
			case health.StatusHealthy:
				s.res.State = StateConnected
				s.res.Err = ""
				f := frame
				s.res.Frame = &f
			case health.StatusUnhealthy:
				s.res.State = StateError
				s.res.Err = report.Err
				s.res.Frame = nil
			}
		})
	}

	ok := l.update(tabID, attempt, func(s *slot) {
		s.monitor = monitor
		s.unsubscribe = monitor.Subscribe(apply)
		s.res.State = StateHealthChecking
	})
	if !ok {
		monitor.Stop()
		return
	}

	apply(monitor.Check(ctx))
	if ctx.Err() == nil {
		monitor.Start(ctx)
	}
}

// update applies fn to the tab's slot if attempt is still current.
// It reports false for superseded attempts.
func (l *Loader) update(tabID string, attempt uint64, fn func(*slot)) bool {
	l.mu.Lock()
	s, ok := l.tabs[tabID]
	if !ok || s.res.Attempt != attempt {
		l.mu.Unlock()
		l.log.Debug("discarding stale resolution", zap.String("tab", tabID), zap.Uint64("attempt", attempt))
		return false
	}
	prev := s.res.State
	fn(s)
	s.res.UpdatedAt = time.Now()
	if s.res.State.Settled() {
		s.markSettled()
	}
	res := s.res
	l.mu.Unlock()

	if res.State != prev {
		l.notify(res)
	}
	return true
}

// Await blocks until the tab's current attempt settles
func (l *Loader) Await(ctx context.Context, tabID string) (Resolution, error) {
	for {
		l.mu.Lock()
		s, ok := l.tabs[tabID]
		if !ok {
			l.mu.Unlock()
			return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownTab, tabID)
		}
		if s.res.State.Settled() {
			res := s.res
			l.mu.Unlock()
			return res, nil
		}
		settled := s.settled
		l.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return Resolution{}, ctx.Err()
		}
	}
}

// Resolution returns the tab's current resolution
func (l *Loader) Resolution(tabID string) (Resolution, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.tabs[tabID]
	if !ok {
		return Resolution{}, false
	}
	return s.res, true
}

// Resolutions returns every tracked resolution
func (l *Loader) Resolutions() []Resolution {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Resolution, 0, len(l.tabs))
	for _, s := range l.tabs {
		out = append(out, s.res)
	}
	return out
}

// Release cancels the tab's monitor and in-flight load
func (l *Loader) Release(tabID string) {
	l.mu.Lock()
	s, ok := l.tabs[tabID]
	if ok {
		delete(l.tabs, tabID)
	}
	l.mu.Unlock()

	if ok {
		l.teardown(s)
	}
}

func (l *Loader) teardown(s *slot) {
	s.cancel()

	l.mu.Lock()
	monitor, unsubscribe := s.monitor, s.unsubscribe
	s.monitor, s.unsubscribe = nil, nil
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if monitor != nil {
		monitor.Stop()
	}
	s.markSettled()
}

// Close releases every tab and waits for in-flight attempts
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	slots := make([]*slot, 0, len(l.tabs))
	for id, s := range l.tabs {
		slots = append(slots, s)
		delete(l.tabs, id)
	}
	l.mu.Unlock()

	for _, s := range slots {
		l.teardown(s)
	}
	l.wg.Wait()
}
