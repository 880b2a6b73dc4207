package workspace

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerOneSessionPerUser(t *testing.T) {
	e := newEnv(t)
	m := NewManager(e.options, nil, nil)

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Get(context.Background(), "alice")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}

	bob, err := m.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.NotSame(t, sessions[0], bob)
	assert.Equal(t, []string{"alice", "bob"}, m.Users())

	_, ok := m.Lookup("carol")
	assert.False(t, ok)

	require.NoError(t, m.Close(context.Background()))
	_, err = m.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestManagerRejectsInvalidUser(t *testing.T) {
	m := NewManager(newEnv(t).options, nil, nil)
	defer m.Close(context.Background())

	_, err := m.Get(context.Background(), "../etc")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestManagerEvict(t *testing.T) {
	e := newEnv(t)
	m := NewManager(e.options, nil, nil)
	defer m.Close(context.Background())

	first, err := m.Get(context.Background(), "alice")
	require.NoError(t, err)
	_, err = first.AddTab(TabRequest{Name: "Kept"})
	require.NoError(t, err)

	require.NoError(t, m.Evict(context.Background(), "alice"))
	assert.Empty(t, m.Users())

	second, err := m.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Len(t, second.Current().Tabs, 2, "evicted sessions flush before closing")
}
