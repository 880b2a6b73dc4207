package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func staticLoader(body string) Loader {
	return static(StaticModule{ID: "x", Title: "X", Body: body})
}

func TestRegisterAndLookup(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register("charts", "Charts", staticLoader("c"), WithCategory("trading")))
	assert.True(t, m.IsRegistered("charts"))
	assert.False(t, m.IsRegistered("missing"))

	entry, ok := m.Lookup("charts")
	require.True(t, ok)
	assert.Equal(t, "Charts", entry.Name)
	assert.Equal(t, "trading", entry.Category)
	assert.Equal(t, SourceHost, entry.Source)
	assert.False(t, entry.RegisteredAt.IsZero())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("charts", "Charts", staticLoader("c")))

	err := m.Register("charts", "Other", staticLoader("d"))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	entry, _ := m.Lookup("charts")
	assert.Equal(t, "Charts", entry.Name, "the first registration wins")
}

func TestRegisterValidates(t *testing.T) {
	m := NewManager()

	assert.Error(t, m.Register("", "Empty", staticLoader("")))
	assert.Error(t, m.Register("bad id!", "Bad", staticLoader("")))
	assert.Error(t, m.Register("ok", "", staticLoader("")))
	assert.Error(t, m.Register("ok", "Ok", nil))
	assert.Empty(t, m.List())
}

func TestRegisterSanitizesName(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("docs", "<b>Docs</b>", staticLoader("")))

	entry, _ := m.Lookup("docs")
	assert.Equal(t, "Docs", entry.Name)
}

func TestListSortedByID(t *testing.T) {
	m := NewManager()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.Register(id, id, staticLoader(id)))
	}

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "zeta", list[2].ID)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, RegisterBuiltins(m))

	mod, err := m.Load(ctx, AnalyticsModule)
	require.NoError(t, err)

	view, err := mod.Render(ctx, RenderRequest{TabID: "tab_1"})
	require.NoError(t, err)
	assert.Equal(t, types.ViewContent, view.Kind)
	assert.Equal(t, "tab_1", view.TabID)
	assert.Equal(t, AnalyticsModule, view.Module)

	_, err = m.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestLoadPropagatesLoaderFailure(t *testing.T) {
	m := NewManager()
	boom := errors.New("chunk failed")
	require.NoError(t, m.Register("broken", "Broken", func(ctx context.Context) (Module, error) {
		return nil, boom
	}))
	require.NoError(t, m.Register("empty", "Empty", func(ctx context.Context) (Module, error) {
		return nil, nil
	}))

	_, err := m.Load(context.Background(), "broken")
	assert.ErrorIs(t, err, boom)

	_, err = m.Load(context.Background(), "empty")
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	metrics := monitoring.NewMetrics()
	m := NewManager(WithMetrics(metrics))
	require.NoError(t, m.Register("charts", "Charts", staticLoader("")))

	assert.True(t, m.Unregister("charts"))
	assert.False(t, m.Unregister("charts"))
	assert.False(t, m.IsRegistered("charts"))
	require.NoError(t, m.Register("charts", "Charts", staticLoader("")), "ids can be reused after removal")
}

func TestBuiltins(t *testing.T) {
	m := NewManager()
	require.NoError(t, RegisterBuiltins(m))

	for _, id := range []string{AnalyticsModule, WelcomeModule, GridModule} {
		entry, ok := m.Lookup(id)
		require.True(t, ok, id)
		assert.Equal(t, SourceBuiltin, entry.Source)
	}
	assert.Error(t, RegisterBuiltins(m), "builtins register once")
}

func TestGridModuleRendersPlacements(t *testing.T) {
	tab := types.Tab{
		ID:       "tab_grid",
		Name:     "Board",
		Kind:     types.TabKindDynamic,
		EditMode: true,
		SubComponents: []types.SubComponent{
			{ID: "sub_1", Type: "chart", Rect: types.Rect{X: 0, Y: 0, W: 4, H: 3}},
		},
	}

	view, err := gridModule{}.Render(context.Background(), RenderRequest{TabID: tab.ID, Tab: tab})
	require.NoError(t, err)
	assert.Equal(t, "Board", view.Title)
	assert.Equal(t, true, view.Data["edit_mode"])
	placements := view.Data["sub_components"].([]interface{})
	require.Len(t, placements, 1)
	assert.Equal(t, "chart", placements[0].(map[string]interface{})["type"])
}

func TestStats(t *testing.T) {
	m := NewManager()
	require.NoError(t, RegisterBuiltins(m))
	require.NoError(t, m.Register("charts", "Charts", staticLoader(""), WithCategory("trading")))

	stats := m.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.BySource[SourceBuiltin])
	assert.Equal(t, 1, stats.BySource[SourceHost])
	assert.Equal(t, 1, stats.Categories["trading"])
	assert.NotNil(t, stats.LastRegistered)
}
