package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))
	assert.ErrorIs(t, r.Register("a"), ErrDuplicateClient)

	c, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, StateIdle, c.State)
	assert.Empty(t, c.RoomID)
	assert.False(t, c.ConnectedAt.IsZero())
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySetState(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))

	require.NoError(t, r.SetState("a", StatePaired, "room"))
	c, _ := r.Get("a")
	assert.Equal(t, StatePaired, c.State)
	assert.Equal(t, "room", c.RoomID)

	// The room is dropped on leaving Paired.
	require.NoError(t, r.SetState("a", StateWaiting, "room"))
	c, _ = r.Get("a")
	assert.Equal(t, StateWaiting, c.State)
	assert.Empty(t, c.RoomID)

	assert.ErrorIs(t, r.SetState("b", StateIdle, ""), ErrUnknownClient)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))
	require.NoError(t, r.SetState("a", StateWaiting, ""))

	c, err := r.Unregister("a")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, c.State)

	_, ok := r.Get("a")
	assert.False(t, ok)

	_, err = r.Unregister("a")
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestRegistryCounts(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, r.Register(id))
	}
	r.SetState("b", StateWaiting, "")
	r.SetState("c", StatePaired, "x")
	r.SetState("d", StatePaired, "x")

	assert.Equal(t, map[State]int{StateIdle: 1, StateWaiting: 1, StatePaired: 2}, r.Counts())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "paired", StatePaired.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestRegistryMustSetState(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))

	assert.NotPanics(t, func() { r.mustSetState("a", StateWaiting, "") })
	c, _ := r.Get("a")
	assert.Equal(t, StateWaiting, c.State)

	assert.Panics(t, func() { r.mustSetState("gone", StateIdle, "") })
}
