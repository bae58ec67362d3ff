package redis

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/moodmuffin/strangerchat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to the Redis server in STRANGERCHAT_TEST_REDIS.
func newTestStore(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("STRANGERCHAT_TEST_REDIS")
	if addr == "" {
		t.Skip("STRANGERCHAT_TEST_REDIS is not set")
	}

	s, err := New(Config{
		Address:     addr,
		ActiveConns: 5,
		IdleConns:   2,
		Timeout:     time.Second,
		PrefixRoom:  "STRANGERTEST:ROOM:%s",
		PrefixKV:    "STRANGERTEST:KV:%s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func del(s *Redis, id string) {
	c := s.pool.Get()
	defer c.Close()
	c.Do("DEL", fmt.Sprintf(s.cfg.PrefixRoom, id))
}

func TestRoomExpiry(t *testing.T) {
	s := newTestStore(t)
	t.Cleanup(func() { del(s, "r2") })

	require.NoError(t, s.AddRoom(store.Room{ID: "r2", CreatedAt: time.Now()}, time.Minute))

	c := s.pool.Get()
	defer c.Close()
	ttl, err := redis.Int(c.Do("TTL", fmt.Sprintf(s.cfg.PrefixRoom, "r2")))
	require.NoError(t, err)
	assert.InDelta(t, 60, ttl, 2)
}

func TestRooms(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	t.Cleanup(func() { del(s, "r1") })

	require.NoError(t, s.AddRoom(store.Room{ID: "r1", CreatedAt: now}, time.Minute))

	r, err := s.GetRoom("r1")
	require.NoError(t, err)
	assert.False(t, r.Closed())
	assert.True(t, r.CreatedAt.Equal(now))

	require.NoError(t, s.CloseRoom(store.Room{ID: "r1", ClosedAt: now, Reason: "peer_left", Messages: 4}))
	r, err = s.GetRoom("r1")
	require.NoError(t, err)
	assert.True(t, r.Closed())
	assert.Equal(t, "peer_left", r.Reason)
	assert.Equal(t, 4, r.Messages)

	del(s, "r1")
	_, err = s.GetRoom("r1")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
	assert.ErrorIs(t, s.CloseRoom(store.Room{ID: "r1"}), store.ErrRoomNotFound)
}

func TestKV(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)

	require.NoError(t, s.Set("k", []byte("v")))
	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
