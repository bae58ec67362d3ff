package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPairer(ids ...string) (*Pairer, *Registry, *Pool) {
	reg := NewRegistry()
	for _, id := range ids {
		reg.Register(id)
	}
	pool := NewPool()
	return NewPairer(reg, pool, NewRoomManager(&fakeEmitter{}, seqIDs())), reg, pool
}

func TestPairerRequest(t *testing.T) {
	p, reg, pool := newTestPairer("a", "b")

	r, err := p.Request("a")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.True(t, pool.Contains("a"))
	c, _ := reg.Get("a")
	assert.Equal(t, StateWaiting, c.State)

	r, err = p.Request("b")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, [2]string{"a", "b"}, r.Members)
	assert.Equal(t, 0, pool.Len())

	for _, id := range r.Members {
		c, _ := reg.Get(id)
		assert.Equal(t, StatePaired, c.State)
		assert.Equal(t, r.ID, c.RoomID)
	}
}

func TestPairerRequestInvalid(t *testing.T) {
	p, _, pool := newTestPairer("a", "b")

	_, err := p.Request("nobody")
	assert.ErrorIs(t, err, ErrUnknownClient)

	p.Request("a")
	_, err = p.Request("a")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, pool.Len())

	p.Request("b")
	_, err = p.Request("b")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPairerOldestFirst(t *testing.T) {
	p, reg, pool := newTestPairer("a", "b", "c", "d")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, pool.Enqueue(id))
		require.NoError(t, reg.SetState(id, StateWaiting, ""))
	}

	r, err := p.Request("d")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, [2]string{"a", "d"}, r.Members)

	ids := []string{}
	for _, e := range pool.entries() {
		ids = append(ids, e.ClientID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	for _, id := range []string{"b", "c"} {
		c, _ := reg.Get(id)
		assert.Equal(t, StateWaiting, c.State)
	}
}

func TestPairerCancel(t *testing.T) {
	p, reg, pool := newTestPairer("a", "b")

	assert.ErrorIs(t, p.Cancel("a"), ErrInvalidState)
	assert.ErrorIs(t, p.Cancel("nobody"), ErrUnknownClient)

	p.Request("a")
	require.NoError(t, p.Cancel("a"))
	assert.False(t, pool.Contains("a"))
	c, _ := reg.Get("a")
	assert.Equal(t, StateIdle, c.State)

	// b doesn't get matched with the cancelled client.
	r, err := p.Request("b")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestPairerCorruptPool(t *testing.T) {
	p, _, pool := newTestPairer("a", "b")

	// An idle client in the pool is a broken invariant.
	pool.Enqueue("a")
	assert.Panics(t, func() { p.Request("b") })
}
