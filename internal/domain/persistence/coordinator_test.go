package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/local"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/remote"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingLocal records every save
type countingLocal struct {
	mu      sync.Mutex
	saves   []types.Record
	record  *types.Record
	backup  *types.Record
	loadErr error
	saveErr error
}

func (l *countingLocal) Load(user string) (types.Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return types.Record{}, false, l.loadErr
	}
	if l.record == nil {
		return types.Record{}, false, nil
	}
	return l.record.Clone(), true, nil
}

func (l *countingLocal) LoadBackup(user string) (types.Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backup == nil {
		return types.Record{}, false, nil
	}
	return l.backup.Clone(), true, nil
}

func (l *countingLocal) Save(user string, record types.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	l.saves = append(l.saves, record.Clone())
	r := record.Clone()
	l.record = &r
	return nil
}

func (l *countingLocal) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.saves)
}

func (l *countingLocal) last() types.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saves[len(l.saves)-1].Clone()
}

// flakyRemote fails every call while down is set
type flakyRemote struct {
	*remote.MemoryStore
	mu   sync.Mutex
	down bool
	puts int
}

var errUnreachable = errors.New("connection refused")

func (f *flakyRemote) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyRemote) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyRemote) Get(ctx context.Context, user string) ([]types.Layout, error) {
	if f.failing() {
		return nil, errUnreachable
	}
	return f.MemoryStore.Get(ctx, user)
}

func (f *flakyRemote) Put(ctx context.Context, user string, l types.Layout) error {
	if f.failing() {
		return errUnreachable
	}
	f.mu.Lock()
	f.puts++
	f.mu.Unlock()
	return f.MemoryStore.Put(ctx, user, l)
}

func (f *flakyRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func testConfig() Config {
	return Config{
		Debounce:        20 * time.Millisecond,
		FlushInterval:   time.Hour,
		ShutdownTimeout: time.Second,
		RemoteTimeout:   time.Second,
	}
}

func newCoordinator(t *testing.T, localTier LocalTier, remoteTier RemoteTier) (*Coordinator, *session.Store) {
	t.Helper()
	volatile := session.NewStore()
	c, err := New(Options{
		User:            "alice",
		DefaultLayoutID: layout.DefaultLayoutID,
		Local:           localTier,
		Remote:          remoteTier,
		Volatile:        volatile,
		Config:          testConfig(),
	})
	require.NoError(t, err)
	return c, volatile
}

func newLayoutStore(t *testing.T) *layout.Store {
	t.Helper()
	store, err := layout.NewStore(layout.DefaultLayout())
	require.NoError(t, err)
	return store
}

func staticTab(name string) layout.TabSpec {
	return layout.TabSpec{
		Name:      name,
		Kind:      types.TabKindStatic,
		ModuleRef: types.ModuleRef{Registry: "welcome"},
	}
}

func userLayout(id, name string, at time.Time) types.Layout {
	return types.Layout{
		ID:        id,
		Name:      name,
		UpdatedAt: at,
		Tabs: []types.Tab{{
			ID:        "tab_" + id,
			Name:      "Main",
			Kind:      types.TabKindStatic,
			Closable:  true,
			ModuleRef: types.ModuleRef{Registry: "welcome"},
		}},
	}
}

func TestNewRequiresTiers(t *testing.T) {
	_, err := New(Options{User: "alice", Volatile: session.NewStore()})
	assert.Error(t, err)

	_, err = New(Options{Local: &countingLocal{}, Volatile: session.NewStore()})
	assert.Error(t, err)

	_, err = New(Options{User: "alice", Local: &countingLocal{}})
	assert.Error(t, err)
}

func TestDebounceCoalescesBurst(t *testing.T) {
	localTier := &countingLocal{}
	c, _ := newCoordinator(t, localTier, nil)
	store := newLayoutStore(t)
	c.Attach(store)

	for _, name := range []string{"One", "Two", "Three", "Four", "Five"} {
		store.AddTab(staticTab(name))
		c.Schedule("tab_added")
	}

	require.Eventually(t, func() bool { return localTier.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, localTier.count(), "a burst produces exactly one write")

	saved := localTier.last()
	require.NotNil(t, saved.Current)
	assert.Len(t, saved.Current.Tabs, 6, "the write carries the final state")
	assert.False(t, c.Dirty())

	require.NoError(t, c.Close(context.Background()))
}

func TestFlushSkipsCleanState(t *testing.T) {
	localTier := &countingLocal{}
	c, _ := newCoordinator(t, localTier, nil)
	c.Attach(newLayoutStore(t))

	require.NoError(t, c.Flush(context.Background(), TriggerPeriodic))
	assert.Equal(t, 0, localTier.count())

	require.NoError(t, c.Flush(context.Background(), TriggerManual))
	assert.Equal(t, 1, localTier.count())

	require.NoError(t, c.Close(context.Background()))
}

func TestFlushRequiresSource(t *testing.T) {
	c, _ := newCoordinator(t, &countingLocal{}, nil)
	assert.Error(t, c.Flush(context.Background(), TriggerManual))
	require.NoError(t, c.Close(context.Background()))
}

func TestFlushReportsLocalFailure(t *testing.T) {
	localTier := &countingLocal{saveErr: errors.New("disk full")}
	c, _ := newCoordinator(t, localTier, nil)
	c.Attach(newLayoutStore(t))

	err := c.Flush(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, c.SyncState().LastError, "disk full")

	localTier.mu.Lock()
	localTier.saveErr = nil
	localTier.mu.Unlock()
	require.NoError(t, c.Close(context.Background()))
}

func TestCloseFlushesPendingChanges(t *testing.T) {
	localTier := &countingLocal{}
	c, _ := newCoordinator(t, localTier, nil)
	c.cfg.Debounce = time.Hour
	store := newLayoutStore(t)
	c.Attach(store)

	store.AddTab(staticTab("Late"))
	c.Schedule("tab_added")
	require.NoError(t, c.Close(context.Background()))

	require.Equal(t, 1, localTier.count())
	assert.Len(t, localTier.last().Current.Tabs, 2)

	c.Schedule("after close")
	assert.False(t, c.Dirty(), "closed coordinators ignore new work")
}

func TestPeriodicFlushWritesDirtyState(t *testing.T) {
	localTier := &countingLocal{}
	c, _ := newCoordinator(t, localTier, nil)
	c.cfg.Debounce = time.Hour
	c.cfg.FlushInterval = 20 * time.Millisecond
	store := newLayoutStore(t)
	c.Attach(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	store.AddTab(staticTab("Tick"))
	c.Schedule("tab_added")

	require.Eventually(t, func() bool { return localTier.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close(context.Background()))
}

func TestPeriodicFlushRetriesFailedWrite(t *testing.T) {
	localTier := &countingLocal{saveErr: errors.New("quota exceeded")}
	c, _ := newCoordinator(t, localTier, nil)
	c.cfg.Debounce = time.Hour
	c.cfg.FlushInterval = 20 * time.Millisecond
	store := newLayoutStore(t)
	c.Attach(store)

	store.AddTab(staticTab("Unsaved"))
	c.Schedule("tab_added")
	require.Error(t, c.Flush(context.Background(), TriggerManual))
	assert.True(t, c.Dirty(), "a failed write stays pending")

	localTier.mu.Lock()
	localTier.saveErr = nil
	localTier.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Eventually(t, func() bool { return localTier.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, localTier.last().Current.Tabs, 2)
	require.NoError(t, c.Close(context.Background()))
}

func TestSetActiveTabWritesVolatileTier(t *testing.T) {
	c, volatile := newCoordinator(t, &countingLocal{}, nil)

	c.SetActiveTab("lay_x", "tab_1")
	tabID, ok := volatile.ActiveTab("alice", "lay_x")
	require.True(t, ok)
	assert.Equal(t, "tab_1", tabID)

	require.NoError(t, c.Close(context.Background()))
}

func TestBootstrapDefaultWhenTiersEmpty(t *testing.T) {
	c, _ := newCoordinator(t, &countingLocal{}, nil)

	result, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, result.Source)
	assert.True(t, result.Record.Empty())

	require.NoError(t, c.Close(context.Background()))
}

func TestBootstrapPrefersRemote(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mem := remote.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "alice", userLayout("lay_r", "Remote", t0)))
	require.NoError(t, mem.PutPointer(ctx, "alice", types.Pointer{
		ActiveLayoutID:  "lay_r",
		DefaultLayoutID: layout.DefaultLayoutID,
		UpdatedAt:       t0,
	}))

	localRecord := types.Record{Layouts: []types.Layout{userLayout("lay_l", "Local", t0)}, ActiveLayoutID: "lay_l"}
	c, volatile := newCoordinator(t, &countingLocal{record: &localRecord}, mem)
	volatile.SetActiveTab("alice", "lay_r", "tab_lay_r")

	result, err := c.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, result.Source)
	require.Len(t, result.Record.Layouts, 1)
	assert.Equal(t, "lay_r", result.Record.Layouts[0].ID)
	assert.Equal(t, "lay_r", result.Record.ActiveLayoutID)
	assert.Equal(t, "tab_lay_r", result.ActiveTabID)
	assert.True(t, c.SyncState().RemoteReachable)

	require.NoError(t, c.Close(ctx))
}

func TestBootstrapKeepsNewerLocalLayout(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mem := remote.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "alice", userLayout("lay_a", "Old name", t0)))
	require.NoError(t, mem.Put(ctx, "alice", userLayout("lay_b", "Remote only", t0)))

	edited := userLayout("lay_a", "Edited offline", t0.Add(time.Hour))
	localRecord := types.Record{Layouts: []types.Layout{edited}, ActiveLayoutID: "lay_a"}
	c, _ := newCoordinator(t, &countingLocal{record: &localRecord}, mem)

	result, err := c.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, result.Source)
	a, ok := result.Record.Layout("lay_a")
	require.True(t, ok)
	assert.Equal(t, "Edited offline", a.Name)
	b, ok := result.Record.Layout("lay_b")
	require.True(t, ok)
	assert.Equal(t, "Remote only", b.Name)

	// The newer local copy is still owed to the remote tier
	require.NoError(t, c.pushRemote(ctx, result.Record))
	stored, err := mem.Get(ctx, "alice")
	require.NoError(t, err)
	names := map[string]string{}
	for _, l := range stored {
		names[l.ID] = l.Name
	}
	assert.Equal(t, "Edited offline", names["lay_a"])

	require.NoError(t, c.Close(ctx))
}

func TestBootstrapRemoteKeepsLocalDefaultWorkingCopy(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mem := remote.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "alice", userLayout("lay_r", "Remote", t0)))

	working := layout.DefaultLayout()
	working.Tabs = append(working.Tabs, userLayout("lay_w", "Scratch", t0).Tabs[0])
	localRecord := types.Record{ActiveLayoutID: layout.DefaultLayoutID, Current: &working}

	c, _ := newCoordinator(t, &countingLocal{record: &localRecord}, mem)
	result, err := c.Bootstrap(ctx)
	require.NoError(t, err)

	assert.Equal(t, SourceRemote, result.Source)
	require.NotNil(t, result.Record.Current)
	assert.Equal(t, layout.DefaultLayoutID, result.Record.Current.ID)
	assert.Len(t, result.Record.Current.Tabs, 2)

	require.NoError(t, c.Close(ctx))
}

func TestBootstrapFallsBackToLocalWhenRemoteHasNothing(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	localRecord := types.Record{Layouts: []types.Layout{userLayout("lay_l", "Local", t0)}, ActiveLayoutID: "lay_l"}

	c, _ := newCoordinator(t, &countingLocal{record: &localRecord}, remote.NewMemoryStore())
	result, err := c.Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, result.Source)
	assert.Equal(t, "lay_l", result.Record.ActiveLayoutID)
	assert.True(t, c.SyncState().RemoteReachable, "not found is a reachable remote")

	require.NoError(t, c.Close(context.Background()))
}

func TestBootstrapFallsBackToLocalWhenRemoteDown(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	localRecord := types.Record{Layouts: []types.Layout{userLayout("lay_l", "Local", t0)}}

	flaky := &flakyRemote{MemoryStore: remote.NewMemoryStore(), down: true}
	c, _ := newCoordinator(t, &countingLocal{record: &localRecord}, flaky)
	result, err := c.Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, result.Source)
	assert.False(t, c.SyncState().RemoteReachable)

	flaky.setDown(false)
	require.NoError(t, c.Close(context.Background()))
}

func TestBootstrapUsesBackupWhenPrimaryCorrupt(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	backup := types.Record{Layouts: []types.Layout{userLayout("lay_b", "Backup", t0)}}

	c, _ := newCoordinator(t, &countingLocal{loadErr: errors.New("corrupt"), backup: &backup}, nil)
	result, err := c.Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceBackup, result.Source)
	require.Len(t, result.Record.Layouts, 1)
	assert.Equal(t, "lay_b", result.Record.Layouts[0].ID)

	require.NoError(t, c.Close(context.Background()))
}

func TestBootstrapHonoursCancelledContext(t *testing.T) {
	c, _ := newCoordinator(t, &countingLocal{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Bootstrap(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, c.Close(context.Background()))
}

func TestRemotePushSendsOnlyChangedLayouts(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyRemote{MemoryStore: remote.NewMemoryStore()}
	c, _ := newCoordinator(t, &countingLocal{}, flaky)
	store := newLayoutStore(t)
	c.Attach(store)

	store.AddTab(staticTab("Charts"))
	first := store.SaveCurrentLayout("Trading")
	store.SaveCurrentLayout("Research")

	require.NoError(t, c.pushRemote(ctx, store.Snapshot()))
	assert.Equal(t, 2, flaky.putCount())

	require.NoError(t, c.pushRemote(ctx, store.Snapshot()))
	assert.Equal(t, 2, flaky.putCount(), "unchanged layouts are not re-sent")

	pointer, err := flaky.GetPointer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.Current().ID, pointer.ActiveLayoutID)

	require.True(t, store.DeleteLayout(first.ID))
	require.NoError(t, c.pushRemote(ctx, store.Snapshot()))

	layouts, err := flaky.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, layouts, 1)
	assert.Equal(t, "Research", layouts[0].Name)

	for _, l := range layouts {
		assert.NotEqual(t, layout.DefaultLayoutID, l.ID, "the seed is never pushed")
	}

	require.NoError(t, c.Close(ctx))
}

func TestRemoteFailureRetriedOnNextFlush(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyRemote{MemoryStore: remote.NewMemoryStore(), down: true}
	c, _ := newCoordinator(t, &countingLocal{}, flaky)
	store := newLayoutStore(t)
	c.Attach(store)

	store.SaveCurrentLayout("Trading")
	require.Error(t, c.pushRemote(ctx, store.Snapshot()))
	assert.False(t, c.SyncState().RemoteReachable)

	flaky.setDown(false)
	require.NoError(t, c.pushRemote(ctx, store.Snapshot()))
	assert.True(t, c.SyncState().RemoteReachable)
	assert.Equal(t, 1, flaky.putCount())

	require.NoError(t, c.Close(ctx))
}

func TestDebouncedFlushPushesRemoteInBackground(t *testing.T) {
	flaky := &flakyRemote{MemoryStore: remote.NewMemoryStore()}
	localTier := &countingLocal{}
	c, _ := newCoordinator(t, localTier, flaky)
	store := newLayoutStore(t)
	c.Attach(store)

	store.SaveCurrentLayout("Trading")
	c.Schedule("layout_saved")

	require.Eventually(t, func() bool { return flaky.putCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, localTier.count())
	require.NoError(t, c.Close(context.Background()))
}

func TestSyncStateObservers(t *testing.T) {
	var mu sync.Mutex
	var seen []types.SyncState

	c, _ := newCoordinator(t, &countingLocal{}, nil)
	c.OnSyncState(func(s types.SyncState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})
	c.Attach(newLayoutStore(t))
	require.NoError(t, c.Flush(context.Background(), TriggerManual))

	mu.Lock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	mu.Unlock()
	assert.NotNil(t, last.LastFlush)
	assert.False(t, last.RemoteEnabled)

	require.NoError(t, c.Close(context.Background()))
}

func TestRoundTripThroughLocalStore(t *testing.T) {
	dir := t.TempDir()
	disk, err := local.NewStore(dir)
	require.NoError(t, err)
	defer disk.Close()

	c, _ := newCoordinator(t, disk, nil)
	store := newLayoutStore(t)
	c.Attach(store)
	store.AddTab(staticTab("Persisted"))
	saved := store.SaveCurrentLayout("Mine")
	require.NoError(t, c.Close(context.Background()))

	next, _ := newCoordinator(t, disk, nil)
	result, err := next.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, result.Source)

	restored := newLayoutStore(t)
	require.NoError(t, restored.Hydrate(result.Record, result.ActiveTabID))
	assert.Equal(t, saved.ID, restored.Current().ID)
	assert.Len(t, restored.Current().Tabs, 2)

	require.NoError(t, next.Close(context.Background()))
}
