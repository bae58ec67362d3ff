package store

import (
	"errors"
	"time"
)

// Store represents a backend store for the room ledger and small
// key-value blobs.
type Store interface {
	AddRoom(r Room, ttl time.Duration) error
	CloseRoom(r Room) error
	GetRoom(id string) (Room, error)

	Get(key string) ([]byte, error)
	Set(key string, data []byte) error
}

// Room represents the ledger record of a room in the store. Member ids are
// never stored.
type Room struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at"`
	Reason    string    `json:"reason"`
	Messages  int       `json:"messages"`
}

// Closed reports whether the room has been closed.
func (r Room) Closed() bool {
	return !r.ClosedAt.IsZero()
}

// ErrRoomNotFound indicates that the requested room was not found.
var ErrRoomNotFound = errors.New("room not found")

// ErrKeyNotFound indicates that the requested key was not found.
var ErrKeyNotFound = errors.New("key not found")
