package workspace

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/loader"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/persistence"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/registry"
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

type env struct {
	local    *local.Store
	volatile *session.Store
	remote   *remote.MemoryStore
	registry *registry.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	disk, err := local.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })

	reg := registry.NewManager()
	require.NoError(t, registry.RegisterBuiltins(reg))

	return &env{local: disk, volatile: session.NewStore(), registry: reg}
}

func (e *env) options(user string) Options {
	opts := Options{
		User:     user,
		Local:    e.local,
		Volatile: e.volatile,
		Registry: e.registry,
		Persistence: persistence.Config{
			Debounce:        10 * time.Millisecond,
			FlushInterval:   time.Hour,
			ShutdownTimeout: time.Second,
			RemoteTimeout:   time.Second,
		},
	}
	if e.remote != nil {
		opts.Remote = e.remote
	}
	return opts
}

func (e *env) open(t *testing.T, user string) *Session {
	t.Helper()
	s, err := New(context.Background(), e.options(user))
	require.NoError(t, err)
	return s
}

func closeSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Close(context.Background()))
}

func awaitState(t *testing.T, s *Session, tabID string) loader.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := s.AwaitResolution(ctx, tabID)
	require.NoError(t, err)
	return res.State
}

func TestConcreteScenario(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	require.Len(t, s.Current().Tabs, 1)
	assert.Equal(t, layout.AnalyticsTabName, s.Current().Tabs[0].Name)
	assert.False(t, s.Current().Tabs[0].Closable)

	tab, err := s.AddTab(TabRequest{Name: "My View", Closable: layout.Bool(true)})
	require.NoError(t, err)
	assert.Len(t, s.Current().Tabs, 2)
	assert.Equal(t, tab.ID, s.ActiveTabID())
	assert.Len(t, s.Layouts(), 1, "adding a tab only changes the working copy")

	err = s.RemoveTab(layout.AnalyticsTabID)
	assert.ErrorIs(t, err, ErrProtectedTab)
	assert.Len(t, s.Current().Tabs, 2)

	saved, err := s.SaveCurrentLayout("Workspace A")
	require.NoError(t, err)
	assert.Len(t, s.Layouts(), 2)
	assert.Equal(t, saved.ID, s.Current().ID)
}

func TestAddTabValidation(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	_, err := s.AddTab(TabRequest{Name: "analytics"})
	assert.ErrorIs(t, err, ErrDuplicateName, "names are unique case-insensitively")

	tab, err := s.AddTab(TabRequest{Name: "  <b>Charts</b> "})
	require.NoError(t, err)
	assert.Equal(t, "Charts", tab.Name)
	assert.Equal(t, registry.WelcomeModule, tab.ModuleRef.Registry)

	_, err = s.AddTab(TabRequest{Name: "<script></script>"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.AddTab(TabRequest{Name: "Grid", Kind: "floating"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.AddTab(TabRequest{Name: "Static grid", GridLayout: json.RawMessage(`{"cols":12}`)})
	assert.ErrorIs(t, err, ErrNotDynamic)

	_, err = s.AddTab(TabRequest{Name: "Bad grid", Kind: types.TabKindDynamic, GridLayout: json.RawMessage(`{`)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	dyn, err := s.AddTab(TabRequest{Name: "Board", Kind: types.TabKindDynamic})
	require.NoError(t, err)
	assert.Equal(t, registry.GridModule, dyn.ModuleRef.Registry)
}

func TestRemoveTabRules(t *testing.T) {
	seed := types.Layout{
		ID:        "lay_seed",
		Name:      "Seed",
		IsDefault: true,
		Tabs: []types.Tab{{
			ID: "tab_only", Name: "Only", Kind: types.TabKindStatic, Closable: true,
			ModuleRef: types.ModuleRef{Registry: registry.WelcomeModule},
		}},
	}
	e := newEnv(t)
	opts := e.options("alice")
	opts.Seed = &seed
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer closeSession(t, s)

	assert.ErrorIs(t, s.RemoveTab("tab_only"), ErrLastTab)
	assert.ErrorIs(t, s.RemoveTab("tab_missing"), ErrTabNotFound)

	tab, err := s.AddTab(TabRequest{Name: "Second"})
	require.NoError(t, err)
	require.NoError(t, s.RemoveTab(tab.ID))
	assert.Len(t, s.Current().Tabs, 1)
	assert.Equal(t, "tab_only", s.ActiveTabID())
}

func TestRenameAndUpdateTab(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	tab, err := s.AddTab(TabRequest{Name: "Draft"})
	require.NoError(t, err)

	_, err = s.RenameTab(tab.ID, "ANALYTICS")
	assert.ErrorIs(t, err, ErrDuplicateName)

	renamed, err := s.RenameTab(tab.ID, "draft")
	require.NoError(t, err, "a tab may change the case of its own name")
	assert.Equal(t, "draft", renamed.Name)

	ref := types.ModuleRef{Registry: registry.AnalyticsModule}
	updated, err := s.UpdateTab(tab.ID, TabUpdate{ModuleRef: &ref})
	require.NoError(t, err)
	assert.Equal(t, registry.AnalyticsModule, updated.ModuleRef.Registry)

	require.Eventually(t, func() bool {
		res, ok := s.Resolution(tab.ID)
		return ok && res.Module == registry.AnalyticsModule && res.State == loader.StateReady
	}, 2*time.Second, 5*time.Millisecond)

	_, err = s.UpdateTab(tab.ID, TabUpdate{ModuleRef: &types.ModuleRef{}})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.RenameTab("tab_missing", "x")
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestEditModeAndSubComponents(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	_, err := s.ToggleEditMode(layout.AnalyticsTabID)
	assert.ErrorIs(t, err, ErrProtectedTab)

	board, err := s.AddTab(TabRequest{Name: "Board", Kind: types.TabKindDynamic})
	require.NoError(t, err)

	chart := types.SubComponent{Type: "chart", Rect: types.Rect{W: 4, H: 3}}
	_, err = s.AddSubComponent(board.ID, chart)
	assert.ErrorIs(t, err, ErrNotEditable)

	toggled, err := s.ToggleEditMode(board.ID)
	require.NoError(t, err)
	assert.True(t, toggled.EditMode)

	added, err := s.AddSubComponent(board.ID, chart)
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	_, err = s.AddSubComponent(board.ID, types.SubComponent{Type: "chart", Rect: types.Rect{W: 0, H: 3}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	moved, err := s.UpdateSubComponent(board.ID, added.ID, SubComponentUpdate{Rect: &types.Rect{X: 2, Y: 1, W: 4, H: 3}})
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Rect.X)

	grid := json.RawMessage(`{"cols":12,"rowHeight":30}`)
	withGrid, err := s.SetGridLayout(board.ID, grid)
	require.NoError(t, err)
	assert.JSONEq(t, string(grid), string(withGrid.GridLayout))

	_, err = s.ToggleEditMode(board.ID)
	require.NoError(t, err)

	_, err = s.UpdateSubComponent(board.ID, added.ID, SubComponentUpdate{Rect: &types.Rect{W: 1, H: 1}})
	assert.ErrorIs(t, err, ErrNotEditable, "moving needs edit mode")

	props, err := s.UpdateSubComponent(board.ID, added.ID, SubComponentUpdate{Props: map[string]interface{}{"symbol": "AAPL"}})
	require.NoError(t, err, "props can change outside edit mode")
	assert.Equal(t, "AAPL", props.Props["symbol"])

	assert.ErrorIs(t, s.RemoveSubComponent(board.ID, added.ID), ErrNotEditable)
	_, err = s.ToggleEditMode(board.ID)
	require.NoError(t, err)
	require.NoError(t, s.RemoveSubComponent(board.ID, added.ID))
	assert.ErrorIs(t, s.RemoveSubComponent(board.ID, added.ID), ErrSubComponentNotFound)

	tab, ok := s.store.Tab(board.ID)
	require.True(t, ok)
	assert.Empty(t, tab.SubComponents)

	_, err = s.SetGridLayout(layout.AnalyticsTabID, grid)
	assert.ErrorIs(t, err, ErrNotDynamic)
}

func TestLayoutOperations(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	_, err := s.SaveCurrentLayout("default")
	assert.ErrorIs(t, err, ErrDuplicateName)

	trading, err := s.SaveCurrentLayout("Trading")
	require.NoError(t, err)
	_, err = s.SaveCurrentLayout("TRADING")
	assert.ErrorIs(t, err, ErrDuplicateName)

	assert.ErrorIs(t, s.DeleteLayout(layout.DefaultLayoutID), ErrProtectedLayout)
	assert.ErrorIs(t, s.DeleteLayout("lay_missing"), ErrLayoutNotFound)
	assert.ErrorIs(t, s.LoadLayout("lay_missing"), ErrLayoutNotFound)

	require.NoError(t, s.LoadLayout(layout.DefaultLayoutID))
	assert.Equal(t, layout.DefaultLayoutID, s.Current().ID)

	require.NoError(t, s.LoadLayout(trading.ID))
	require.NoError(t, s.DeleteLayout(trading.ID))
	assert.Equal(t, layout.DefaultLayoutID, s.Current().ID)
	assert.Len(t, s.Layouts(), 1)

	_, err = s.AddTab(TabRequest{Name: "Scratch"})
	require.NoError(t, err)
	require.NoError(t, s.ResetToDefault())
	assert.Len(t, s.Current().Tabs, 1)
}

func TestReorderAndActiveTab(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	a, err := s.AddTab(TabRequest{Name: "A"})
	require.NoError(t, err)
	b, err := s.AddTab(TabRequest{Name: "B"})
	require.NoError(t, err)

	require.NoError(t, s.ReorderTabs([]string{b.ID, layout.AnalyticsTabID, a.ID}))
	assert.Equal(t, b.ID, s.Current().Tabs[0].ID)
	assert.ErrorIs(t, s.ReorderTabs([]string{a.ID}), layout.ErrInvalidOrder)

	require.NoError(t, s.SetActiveTab(a.ID))
	assert.Equal(t, a.ID, s.ActiveTabID())
	assert.ErrorIs(t, s.SetActiveTab("tab_missing"), ErrTabNotFound)

	tabID, ok := e.volatile.ActiveTab("alice", layout.DefaultLayoutID)
	require.True(t, ok)
	assert.Equal(t, a.ID, tabID, "the volatile tier follows the active tab immediately")
}

func TestStateSurvivesRestart(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")

	_, err := s.AddTab(TabRequest{Name: "Charts"})
	require.NoError(t, err)
	saved, err := s.SaveCurrentLayout("Mine")
	require.NoError(t, err)
	active := s.ActiveTabID()
	closeSession(t, s)

	restored := e.open(t, "alice")
	defer closeSession(t, restored)

	assert.Equal(t, persistence.SourceLocal, restored.Snapshot().Source)
	assert.Equal(t, saved.ID, restored.Current().ID)
	assert.Len(t, restored.Current().Tabs, 2)
	assert.Len(t, restored.Layouts(), 2)
	assert.Equal(t, active, restored.ActiveTabID())
}

func TestActiveTabFallsBackWhenVolatileTierCleared(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	_, err := s.AddTab(TabRequest{Name: "Charts"})
	require.NoError(t, err)
	require.NoError(t, s.SetActiveTab(layout.AnalyticsTabID))
	_, err = s.AddTab(TabRequest{Name: "News"})
	require.NoError(t, err)
	closeSession(t, s)

	e.volatile.Clear("alice")
	restored := e.open(t, "alice")
	defer closeSession(t, restored)

	assert.Equal(t, restored.Current().Tabs[0].ID, restored.ActiveTabID())
}

func TestRemoteTierPreferredAtBootstrap(t *testing.T) {
	e := newEnv(t)
	e.remote = remote.NewMemoryStore()

	first := e.open(t, "alice")
	_, err := first.SaveCurrentLayout("Synced")
	require.NoError(t, err)
	closeSession(t, first)

	other := newEnv(t)
	other.remote = e.remote
	s := other.open(t, "alice")
	defer closeSession(t, s)

	assert.Equal(t, persistence.SourceRemote, s.Snapshot().Source)
	assert.Equal(t, "Synced", s.Current().Name)
	assert.True(t, s.SyncState().RemoteEnabled)
}

func TestLocalLayoutsSeedEmptyRemote(t *testing.T) {
	e := newEnv(t)
	first := e.open(t, "alice")
	saved, err := first.SaveCurrentLayout("Offline")
	require.NoError(t, err)
	closeSession(t, first)

	e.remote = remote.NewMemoryStore()
	s := e.open(t, "alice")
	defer closeSession(t, s)
	assert.Equal(t, persistence.SourceLocal, s.Snapshot().Source)

	assert.Eventually(t, func() bool {
		layouts, err := e.remote.Get(context.Background(), "alice")
		if err != nil {
			return false
		}
		for _, l := range layouts {
			if l.ID == saved.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlushAfterCloseIsRejected(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	closeSession(t, s)

	assert.ErrorIs(t, s.Flush(context.Background()), ErrClosed)
}

func TestModuleResolutionIsIsolated(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	broken, err := s.AddTab(TabRequest{Name: "Broken", ModuleRef: types.ModuleRef{Registry: "missing"}})
	require.NoError(t, err)
	fine, err := s.AddTab(TabRequest{Name: "Fine", ModuleRef: types.ModuleRef{Registry: registry.WelcomeModule}})
	require.NoError(t, err)

	assert.Equal(t, loader.StateReady, awaitState(t, s, layout.AnalyticsTabID))
	assert.Equal(t, loader.StateError, awaitState(t, s, broken.ID))
	assert.Equal(t, loader.StateReady, awaitState(t, s, fine.ID))

	view, err := s.Render(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ViewError, view.Kind)

	view, err = s.Render(context.Background(), fine.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ViewContent, view.Kind)

	_, err = s.Render(context.Background(), "tab_missing")
	assert.ErrorIs(t, err, ErrTabNotFound)

	res, err := s.RetryModule(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, loader.StateResolving, res.State)

	require.NoError(t, s.RemoveTab(fine.ID))
	_, ok := s.Resolution(fine.ID)
	assert.False(t, ok, "removing a tab releases its module")
}

func TestLayoutSwitchReleasesOldTabs(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	_, err := s.SaveCurrentLayout("Other")
	require.NoError(t, err)
	require.NoError(t, s.LoadLayout(layout.DefaultLayoutID))

	current := s.Current()
	for _, res := range s.Snapshot().Resolutions {
		assert.True(t, current.HasTab(res.TabID), "only current tabs keep resolutions")
	}
	assert.Equal(t, loader.StateReady, awaitState(t, s, layout.AnalyticsTabID))
}

func TestSubscribeAndClose(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")

	events, cancel := s.Subscribe()
	defer cancel()

	tab, err := s.AddTab(TabRequest{Name: "Watched"})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for found := false; !found; {
		select {
		case ev := <-events:
			if ev.Type == EventLayout && ev.Change.Kind == layout.ChangeTabAdded {
				assert.Equal(t, tab.ID, ev.Change.TabID)
				found = true
			}
		case <-deadline:
			t.Fatal("no tab_added event")
		}
	}

	closeSession(t, s)
	for range events {
	}

	_, err = s.AddTab(TabRequest{Name: "Late"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close(context.Background()), "close is idempotent")
}

func TestFlushWritesLocalTier(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	defer closeSession(t, s)

	_, err := s.AddTab(TabRequest{Name: "Now"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	record, ok, err := e.local.Load("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, record.Current)
	assert.Len(t, record.Current.Tabs, 2)
}

func TestInvalidSeedIsFatal(t *testing.T) {
	e := newEnv(t)
	opts := e.options("alice")
	opts.Seed = &types.Layout{ID: "lay_bad", Name: "Bad"}

	_, err := New(context.Background(), opts)
	assert.Error(t, err)
}
