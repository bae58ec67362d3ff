package hub

import (
	"fmt"
	"time"
)

// State is the pairing state of a connected client.
type State int

// Client states.
const (
	StateIdle State = iota
	StateWaiting
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	}
	return "unknown"
}

// Client is a connected client as seen by the registry.
type Client struct {
	ID          string
	State       State
	RoomID      string
	ConnectedAt time.Time
}

// Registry tracks every connected client and its current state. It knows
// nothing of pairing or rooms and is not safe for concurrent use; the Hub's
// event loop is its only caller.
type Registry struct {
	clients map[string]*Client
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register adds a new idle client.
func (r *Registry) Register(id string) error {
	if _, ok := r.clients[id]; ok {
		return ErrDuplicateClient
	}
	r.clients[id] = &Client{
		ID:          id,
		State:       StateIdle,
		ConnectedAt: time.Now(),
	}
	return nil
}

// Unregister removes a client regardless of its state and returns its
// record as it was just before removal.
func (r *Registry) Unregister(id string) (Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return Client{}, ErrUnknownClient
	}
	delete(r.clients, id)
	return *c, nil
}

// SetState transitions a client. roomID is only kept for StatePaired.
func (r *Registry) SetState(id string, s State, roomID string) error {
	c, ok := r.clients[id]
	if !ok {
		return ErrUnknownClient
	}
	c.State = s
	if s == StatePaired {
		c.RoomID = roomID
	} else {
		c.RoomID = ""
	}
	return nil
}

// mustSetState is SetState for clients the caller has already looked up.
// A missing client there means the registry and its caller disagree.
func (r *Registry) mustSetState(id string, s State, roomID string) {
	if err := r.SetState(id, s, roomID); err != nil {
		panic(fmt.Sprintf("hub: invariant violated: set state of %q: %v", id, err))
	}
}

// Get returns a copy of a client's record.
func (r *Registry) Get(id string) (Client, bool) {
	c, ok := r.clients[id]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

// Len returns the number of connected clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// Counts returns the number of clients in each state.
func (r *Registry) Counts() map[State]int {
	out := map[State]int{StateIdle: 0, StateWaiting: 0, StatePaired: 0}
	for _, c := range r.clients {
		out[c.State]++
	}
	return out
}

// each calls fn for every client.
func (r *Registry) each(fn func(c Client)) {
	for _, c := range r.clients {
		fn(*c)
	}
}
