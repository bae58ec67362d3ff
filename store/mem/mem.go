package mem

import (
	"sync"
	"time"

	"github.com/moodmuffin/strangerchat/store"
)

// InMemory represents the in-memory implementation of the Store interface.
type InMemory struct {
	rooms map[string]*room
	data  map[string][]byte
	mu    sync.Mutex
}

type room struct {
	store.Room
	Expire time.Time
}

// New returns a new in-memory store.
func New() *InMemory {
	store := &InMemory{
		rooms: map[string]*room{},
		data:  map[string][]byte{},
	}
	go store.watch()
	return store
}

// watch the store to clean it up.
func (m *InMemory) watch() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		m.cleanup(time.Now())
	}
}

// cleanup the store to removes expired items.
func (m *InMemory) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.rooms {
		if r.Expire.Before(now) {
			delete(m.rooms, id)
		}
	}
}

// AddRoom adds a room to the store.
func (m *InMemory) AddRoom(r store.Room, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[r.ID] = &room{
		Room:   r,
		Expire: r.CreatedAt.Add(ttl),
	}
	return nil
}

// CloseRoom records a room's closing time, reason and message count.
func (m *InMemory) CloseRoom(r store.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.rooms[r.ID]
	if !ok {
		return store.ErrRoomNotFound
	}
	out.ClosedAt = r.ClosedAt
	out.Reason = r.Reason
	out.Messages = r.Messages
	return nil
}

// GetRoom gets a room from the store.
func (m *InMemory) GetRoom(id string) (store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.rooms[id]
	if !ok {
		return store.Room{}, store.ErrRoomNotFound
	}
	return out.Room, nil
}

// Get value from a key.
func (m *InMemory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return d, nil
}

// Set a value.
func (m *InMemory) Set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = make([]byte, len(data))
	copy(m.data[key], data)
	return nil
}
