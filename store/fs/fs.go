package fs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/moodmuffin/strangerchat/store"
)

// Config represents the file store config structure.
type Config struct {
	Path string `koanf:"path"`
}

// File represents the file implementation of the Store interface. The
// whole store is kept in memory and flushed to a JSON file periodically.
type File struct {
	cfg   *Config
	rooms map[string]*room
	data  map[string][]byte
	mu    sync.Mutex
	dirty bool
	log   *log.Logger
}

type room struct {
	store.Room
	Expire time.Time
}

type snapshot struct {
	Rooms map[string]*room
	Data  map[string][]byte
}

// New returns a new file store, loading any existing data from cfg.Path.
func New(cfg Config, log *log.Logger) (*File, error) {
	store := &File{
		cfg:   &cfg,
		rooms: map[string]*room{},
		data:  map[string][]byte{},
		log:   log,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	go store.watch()
	return store, nil
}

// watch the store to clean it up.
func (m *File) watch() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		m.cleanup(time.Now())
		m.save()
	}
}

// cleanup the store to removes expired items.
func (m *File) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.rooms {
		if !r.Expire.IsZero() && r.Expire.Before(now) {
			delete(m.rooms, id)
			m.dirty = true
		}
	}
}

// load the data from the file system.
func (m *File) load() error {
	b, err := os.ReadFile(m.cfg.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var x snapshot
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	if x.Rooms != nil {
		m.rooms = x.Rooms
	}
	if x.Data != nil {
		m.data = x.Data
	}
	return nil
}

// save the data to the file system.
func (m *File) save() {
	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return
	}
	b, err := json.Marshal(snapshot{Rooms: m.rooms, Data: m.data})
	if err == nil {
		m.dirty = false
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Printf("error encoding store: %v", err)
		return
	}
	if err := os.WriteFile(m.cfg.Path, b, 0600); err != nil {
		m.log.Printf("error writing file %q: %v", m.cfg.Path, err)
	}
}

// Close flushes pending changes to disk.
func (m *File) Close() {
	m.save()
}

// AddRoom adds a room to the store.
func (m *File) AddRoom(r store.Room, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[r.ID] = &room{
		Room:   r,
		Expire: r.CreatedAt.Add(ttl),
	}
	m.dirty = true
	return nil
}

// CloseRoom records a room's closing time, reason and message count.
func (m *File) CloseRoom(r store.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.rooms[r.ID]
	if !ok {
		return store.ErrRoomNotFound
	}
	out.ClosedAt = r.ClosedAt
	out.Reason = r.Reason
	out.Messages = r.Messages
	m.dirty = true
	return nil
}

// GetRoom gets a room from the store.
func (m *File) GetRoom(id string) (store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.rooms[id]
	if !ok {
		return store.Room{}, store.ErrRoomNotFound
	}
	return out.Room, nil
}

// Get value from a key.
func (m *File) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return d, nil
}

// Set a value.
func (m *File) Set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = make([]byte, len(data))
	copy(m.data[key], data)
	m.dirty = true
	return nil
}
