package hub

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle status of a room.
type RoomStatus int

// Room statuses.
const (
	RoomActive RoomStatus = iota
	RoomClosed
)

func (s RoomStatus) String() string {
	if s == RoomActive {
		return "active"
	}
	return "closed"
}

// Reason describes why a room was closed.
type Reason string

// Close reasons.
const (
	ReasonPeerLeft         Reason = "peer_left"
	ReasonPeerDisconnected Reason = "peer_disconnected"
	ReasonShutdown         Reason = "shutdown"
)

// Room is a private chat between two strangers.
type Room struct {
	ID        string
	Members   [2]string
	CreatedAt time.Time
	Status    RoomStatus
	ClosedAt  time.Time
	Reason    Reason

	// Number of messages relayed.
	Messages int
}

// peerOf returns the other member of the room.
func (r *Room) peerOf(id string) (string, bool) {
	switch id {
	case r.Members[0]:
		return r.Members[1], true
	case r.Members[1]:
		return r.Members[0], true
	}
	return "", false
}

// RoomManager owns every room from creation to eviction. Member ids are
// back-references into the Registry, never ownership.
type RoomManager struct {
	rooms map[string]*Room

	// Active room of each paired member.
	members map[string]string

	newID func() string
	out   emitter
}

// NewRoomManager returns a RoomManager that delivers relayed messages
// through out. If newID is nil, random UUIDs are used as room IDs.
func NewRoomManager(out emitter, newID func() string) *RoomManager {
	if newID == nil {
		newID = uuid.NewString
	}
	return &RoomManager{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		newID:   newID,
		out:     out,
	}
}

// Create opens a new active room for two distinct clients, neither of
// which may already be in an active room.
func (m *RoomManager) Create(a, b string) *Room {
	if a == b {
		panic(fmt.Sprintf("hub: invariant violated: room with duplicate member %q", a))
	}
	for _, id := range []string{a, b} {
		if rID, ok := m.members[id]; ok {
			panic(fmt.Sprintf("hub: invariant violated: %q is already in active room %q", id, rID))
		}
	}

	id := m.newID()
	if _, ok := m.rooms[id]; ok {
		panic(fmt.Sprintf("hub: invariant violated: room id %q reused", id))
	}

	r := &Room{
		ID:        id,
		Members:   [2]string{a, b},
		CreatedAt: time.Now(),
		Status:    RoomActive,
	}
	m.rooms[id] = r
	m.members[a] = id
	m.members[b] = id
	return r
}

// Relay delivers a message from sender to the other member of the room.
// The sender never gets an echo and delivery is not acknowledged.
func (m *RoomManager) Relay(roomID, sender, text string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	peer, ok := r.peerOf(sender)
	if !ok {
		return ErrNotAMember
	}
	if r.Status == RoomClosed {
		return ErrRoomClosed
	}

	r.Messages++
	m.out.emit(peer, TypeMessage, msgChat{Text: text, From: FromStranger})
	return nil
}

// Close marks a room closed on behalf of leaver and returns the member
// that is left behind. Closing an already closed room is a no-op that
// returns no member, so the remaining peer is only ever notified once.
func (m *RoomManager) Close(roomID, leaver string, reason Reason) (string, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	peer, ok := r.peerOf(leaver)
	if !ok {
		return "", ErrNotAMember
	}
	if r.Status == RoomClosed {
		return "", nil
	}

	r.Status = RoomClosed
	r.ClosedAt = time.Now()
	r.Reason = reason
	delete(m.members, r.Members[0])
	delete(m.members, r.Members[1])
	return peer, nil
}

// Sweep evicts rooms that have been closed for longer than ttl and
// returns their IDs.
func (m *RoomManager) Sweep(now time.Time, ttl time.Duration) []string {
	var out []string
	for id, r := range m.rooms {
		if r.Status == RoomClosed && now.Sub(r.ClosedAt) >= ttl {
			delete(m.rooms, id)
			out = append(out, id)
		}
	}
	return out
}

// Get returns a copy of a room.
func (m *RoomManager) Get(id string) (Room, bool) {
	r, ok := m.rooms[id]
	if !ok {
		return Room{}, false
	}
	return *r, true
}

// RoomOf returns the active room a client is a member of.
func (m *RoomManager) RoomOf(member string) (string, bool) {
	id, ok := m.members[member]
	return id, ok
}

// ActiveCount returns the number of active rooms.
func (m *RoomManager) ActiveCount() int {
	n := 0
	for _, r := range m.rooms {
		if r.Status == RoomActive {
			n++
		}
	}
	return n
}

// ClosedCount returns the number of closed rooms awaiting eviction.
func (m *RoomManager) ClosedCount() int {
	return len(m.rooms) - m.ActiveCount()
}

// active returns all active rooms.
func (m *RoomManager) active() []*Room {
	out := make([]*Room, 0, len(m.members)/2)
	for _, r := range m.rooms {
		if r.Status == RoomActive {
			out = append(out, r)
		}
	}
	return out
}
