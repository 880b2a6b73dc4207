package local

import (
	"os"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(name string) types.Record {
	l := types.Layout{
		ID:        "lay_" + name,
		Name:      name,
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Tabs: []types.Tab{{
			ID:        "tab_" + name,
			Name:      "Tab " + name,
			Kind:      types.TabKindStatic,
			Closable:  true,
			ModuleRef: types.ModuleRef{Registry: "welcome"},
		}},
	}
	current := l.Clone()
	return types.Record{Layouts: []types.Layout{l}, ActiveLayoutID: l.ID, DefaultLayoutID: "lay_default", Current: &current}
}

func TestLoadMiss(t *testing.T) {
	store := newStore(t)
	_, ok, err := store.Load("alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		store := newStore(t, WithCompression(compressed))
		want := record("a")
		require.NoError(t, store.Save("alice", want))

		got, ok, err := store.Load("alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want.ActiveLayoutID, got.ActiveLayoutID)
		assert.Equal(t, want.Layouts[0].Tabs, got.Layouts[0].Tabs)

		raw, err := os.ReadFile(paths.RecordFile(store.dir, "alice"))
		require.NoError(t, err)
		if compressed {
			assert.Equal(t, zstdMagic, raw[:4])
		} else {
			assert.Equal(t, byte('{'), raw[0])
		}
	}
}

func TestReadsEitherEncoding(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewStore(dir, WithCompression(true))
	require.NoError(t, err)
	require.NoError(t, writer.Save("alice", record("a")))
	require.NoError(t, writer.Close())

	reader, err := NewStore(dir)
	require.NoError(t, err)
	defer reader.Close()

	got, ok, err := reader.Load("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lay_a", got.ActiveLayoutID)
}

func TestSaveRotatesBackup(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save("alice", record("first")))
	require.NoError(t, store.Save("alice", record("second")))

	primary, ok, err := store.Load("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lay_second", primary.ActiveLayoutID)

	backup, ok, err := store.LoadBackup("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lay_first", backup.ActiveLayoutID)
}

func TestCorruptPrimaryIsErrorAndKeepsBackup(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save("alice", record("first")))
	require.NoError(t, store.Save("alice", record("second")))

	require.NoError(t, os.WriteFile(paths.RecordFile(store.dir, "alice"), []byte("{garbage"), 0o600))
	_, ok, err := store.Load("alice")
	assert.Error(t, err)
	assert.False(t, ok)

	// A save over a corrupt primary must not clobber the good backup
	require.NoError(t, store.Save("alice", record("third")))
	backup, ok, err := store.LoadBackup("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lay_first", backup.ActiveLayoutID)
}

func TestUsersAndDelete(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save("alice", record("a")))
	require.NoError(t, store.Save("bob", record("b")))

	users, err := store.Users()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	require.NoError(t, store.Delete("alice"))
	require.NoError(t, store.Delete("alice"))
	_, ok, err := store.Load("alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStoreRequiresDir(t *testing.T) {
	_, err := NewStore("  ")
	assert.Error(t, err)
}
