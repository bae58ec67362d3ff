package fs

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moodmuffin/strangerchat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *File {
	t.Helper()
	s, err := New(Config{Path: path}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return s
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	now := time.Now().UTC()

	s := newTestStore(t, path)
	require.NoError(t, s.AddRoom(store.Room{ID: "r1", CreatedAt: now}, time.Hour))
	require.NoError(t, s.CloseRoom(store.Room{ID: "r1", ClosedAt: now, Reason: "peer_disconnected", Messages: 7}))
	require.NoError(t, s.Set("onionkey", []byte("secret")))
	s.Close()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	s = newTestStore(t, path)
	r, err := s.GetRoom("r1")
	require.NoError(t, err)
	assert.True(t, r.Closed())
	assert.Equal(t, "peer_disconnected", r.Reason)
	assert.Equal(t, 7, r.Messages)
	assert.True(t, r.CreatedAt.Equal(now))

	v, err := s.Get("onionkey")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), v)
}

func TestMissingFile(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "none.json"))
	_, err := s.GetRoom("r1")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
	_, err = s.Get("k")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := New(Config{Path: path}, log.New(io.Discard, "", 0))
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := newTestStore(t, path)
	now := time.Now()
	s.AddRoom(store.Room{ID: "old", CreatedAt: now.Add(-2 * time.Hour)}, time.Hour)
	s.AddRoom(store.Room{ID: "new", CreatedAt: now}, time.Hour)

	s.cleanup(now)
	_, err := s.GetRoom("old")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
	_, err = s.GetRoom("new")
	assert.NoError(t, err)
}
