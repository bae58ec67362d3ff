package hub

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Config represents the app configuration.
type Config struct {
	Address string `koanf:"address"`
	RootURL string `koanf:"root_url"`
	Name    string `koanf:"name"`

	MaxMessageLen     int           `koanf:"max_message_length"`
	WSTimeout         time.Duration `koanf:"websocket_timeout"`
	MaxMessageQueue   int           `koanf:"max_message_queue"`
	RateLimitInterval time.Duration `koanf:"rate_limit_interval"`
	RateLimitMessages int           `koanf:"rate_limit_messages"`
	MaxClients        int           `koanf:"max_clients"`
	ClosedRoomTTL     time.Duration `koanf:"closed_room_ttl"`
	RoomRecordAge     time.Duration `koanf:"room_record_age"`
	Greeting          string        `koanf:"greeting"`
	CheckInvariants   bool          `koanf:"check_invariants"`
}

// Sink is the outbound side of a client connection. SendData must not
// block; it is called from the hub's event loop.
type Sink interface {
	SendData(b []byte)
	Close(reason string)
}

// Filter screens chat messages before they are relayed.
type Filter interface {
	Flagged(text string) bool
	Notice() string
}

// Recorder is told about room lifecycle changes. It is called from the
// event loop and must not block.
type Recorder interface {
	RoomOpened(r Room)
	RoomClosed(r Room)
}

// Stats is a snapshot of the hub's counters.
type Stats struct {
	Clients         int   `json:"clients"`
	Idle            int   `json:"idle"`
	Waiting         int   `json:"waiting"`
	Paired          int   `json:"paired"`
	ActiveRooms     int   `json:"active_rooms"`
	ClosedRooms     int   `json:"closed_rooms"`
	RoomsCreated    int64 `json:"rooms_created"`
	MessagesRelayed int64 `json:"messages_relayed"`
}

// Hub is the session gateway. It owns the registry, the waiting pool and
// the rooms, and mutates them only from its own event loop (Run). Every
// exported method hands a closure to the loop and waits for it, so events
// are applied one at a time in arrival order.
type Hub struct {
	cfg    *Config
	reg    *Registry
	pool   *Pool
	rooms  *RoomManager
	pairer *Pairer

	// Outbound side of every registered client.
	sinks map[string]Sink

	filter Filter
	rec    Recorder
	log    *log.Logger

	reqQ     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	roomsCreated    int64
	messagesRelayed int64
}

// NewHub returns a new instance of Hub. rec and filter are optional.
func NewHub(cfg *Config, rec Recorder, filter Filter, l *log.Logger) *Hub {
	h := &Hub{
		cfg:    cfg,
		reg:    NewRegistry(),
		pool:   NewPool(),
		sinks:  make(map[string]Sink),
		filter: filter,
		rec:    rec,
		log:    l,
		reqQ:   make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	h.rooms = NewRoomManager(h, nil)
	h.pairer = NewPairer(h.reg, h.pool, h.rooms)
	return h
}

// Run is a blocking function that runs the hub's event loop until Stop is
// called. This should be invoked as a goroutine.
func (h *Hub) Run() {
	ttl := h.cfg.ClosedRoomTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	sweep := time.NewTicker(ttl)
	defer sweep.Stop()

loop:
	for {
		select {
		case fn := <-h.reqQ:
			fn()
			if h.cfg.CheckInvariants {
				if err := h.audit(); err != nil {
					panic(err)
				}
			}

		// Evict rooms that have been closed for a while.
		case now := <-sweep.C:
			h.rooms.Sweep(now, ttl)

		case <-h.quit:
			break loop
		}
	}

	h.shutdown()
	close(h.done)
}

// Stop stops the event loop, closes every room and disconnects every
// client. It blocks until the loop has exited.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
	<-h.done
}

// Connect registers a new idle client and the sink its notifications
// are written to.
func (h *Hub) Connect(id string, s Sink) error {
	return h.exec(func() error {
		if h.cfg.MaxClients > 0 && h.reg.Len() >= h.cfg.MaxClients {
			return ErrHubFull
		}
		if err := h.reg.Register(id); err != nil {
			return err
		}
		h.sinks[id] = s
		h.log.Printf("%s connected", id)
		return nil
	})
}

// Disconnect removes a client. A waiting client leaves the pool and a
// paired client's room is closed, notifying the stranger left behind.
func (h *Hub) Disconnect(id string) error {
	return h.exec(func() error {
		c, err := h.reg.Unregister(id)
		if err != nil {
			return err
		}
		delete(h.sinks, id)

		switch c.State {
		case StateWaiting:
			h.pool.Remove(id)
		case StatePaired:
			if err := h.teardown(c.RoomID, id, ReasonPeerDisconnected); err != nil {
				h.log.Printf("error closing room %s of %s: %v", c.RoomID, id, err)
			}
		}

		h.log.Printf("%s disconnected", id)
		return nil
	})
}

// StartChat pairs a client with the oldest waiting stranger or queues it.
func (h *Hub) StartChat(id string) error {
	return h.exec(func() error {
		r, err := h.pairer.Request(id)
		if err != nil {
			return err
		}
		if r == nil {
			h.log.Printf("%s is waiting (%d in pool)", id, h.pool.Len())
			return nil
		}

		h.roomsCreated++
		for _, m := range r.Members {
			h.emit(m, TypeChatStarted, msgRoom{RoomID: r.ID})
			if h.cfg.Greeting != "" {
				h.emit(m, TypeMessage, msgChat{Text: h.cfg.Greeting})
			}
		}
		if h.rec != nil {
			h.rec.RoomOpened(*r)
		}
		h.log.Printf("paired %s and %s in %s", r.Members[0], r.Members[1], r.ID)
		return nil
	})
}

// CancelChat takes a waiting client out of the pool.
func (h *Hub) CancelChat(id string) error {
	return h.exec(func() error {
		return h.pairer.Cancel(id)
	})
}

// SendMessage relays a message to the sender's stranger.
func (h *Hub) SendMessage(id, roomID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	flagged := h.filter != nil && h.filter.Flagged(text)

	return h.exec(func() error {
		if _, ok := h.reg.Get(id); !ok {
			return ErrUnknownClient
		}
		if flagged {
			h.emit(id, TypeMessage, msgChat{Text: h.filter.Notice()})
			return ErrMessageFlagged
		}
		if err := h.rooms.Relay(roomID, id, text); err != nil {
			return err
		}
		h.messagesRelayed++
		return nil
	})
}

// EndChat closes a room on behalf of one of its members. Ending a room
// that is already closed is a no-op.
func (h *Hub) EndChat(id, roomID string) error {
	return h.exec(func() error {
		if _, ok := h.reg.Get(id); !ok {
			return ErrUnknownClient
		}
		return h.teardown(roomID, id, ReasonPeerLeft)
	})
}

// Client returns a client's registry record.
func (h *Hub) Client(id string) (Client, bool) {
	var (
		c  Client
		ok bool
	)
	h.exec(func() error {
		c, ok = h.reg.Get(id)
		return nil
	})
	return c, ok
}

// Stats returns a snapshot of the hub's counters.
func (h *Hub) Stats() Stats {
	var s Stats
	h.exec(func() error {
		n := h.reg.Counts()
		s = Stats{
			Clients:         h.reg.Len(),
			Idle:            n[StateIdle],
			Waiting:         n[StateWaiting],
			Paired:          n[StatePaired],
			ActiveRooms:     h.rooms.ActiveCount(),
			ClosedRooms:     h.rooms.ClosedCount(),
			RoomsCreated:    h.roomsCreated,
			MessagesRelayed: h.messagesRelayed,
		}
		return nil
	})
	return s
}

// teardown is the shared path of an explicit end and a disconnect. Both
// members go back to idle and the remaining one is notified, once.
func (h *Hub) teardown(roomID, leaver string, reason Reason) error {
	peer, err := h.rooms.Close(roomID, leaver, reason)
	if err != nil {
		return err
	}
	if peer == "" {
		return nil
	}

	// The leaver may already be unregistered on disconnect.
	if _, ok := h.reg.Get(leaver); ok {
		h.reg.mustSetState(leaver, StateIdle, "")
	}
	h.reg.mustSetState(peer, StateIdle, "")
	h.emit(peer, TypeStrangerDisconnected, nil)

	if r, ok := h.rooms.Get(roomID); ok && h.rec != nil {
		h.rec.RoomClosed(r)
	}
	h.log.Printf("closed %s: %s (%s)", roomID, reason, leaver)
	return nil
}

// emit writes a message to a client's sink, if it is still connected.
func (h *Hub) emit(clientID, typ string, data interface{}) {
	s, ok := h.sinks[clientID]
	if !ok {
		return
	}
	s.SendData(makePayload(typ, data))
}

// exec runs fn on the event loop and returns its result.
func (h *Hub) exec(fn func() error) error {
	res := make(chan error, 1)
	select {
	case h.reqQ <- func() { res <- fn() }:
	case <-h.done:
		return ErrHubStopped
	}
	return <-res
}

// shutdown closes all rooms and client sinks. It runs on the loop
// goroutine after the loop has exited.
func (h *Hub) shutdown() {
	for _, r := range h.rooms.active() {
		if _, err := h.rooms.Close(r.ID, r.Members[0], ReasonShutdown); err == nil && h.rec != nil {
			h.rec.RoomClosed(*r)
		}
	}
	for id, s := range h.sinks {
		s.Close(TypeHubShutdown)
		delete(h.sinks, id)
	}
	h.log.Printf("hub stopped")
}

// audit verifies the pairing invariants across the registry, the pool and
// the rooms.
func (h *Hub) audit() error {
	seen := make(map[string]string)
	for _, r := range h.rooms.active() {
		a, b := r.Members[0], r.Members[1]
		if a == b {
			return fmt.Errorf("hub: invariant violated: room %s has duplicate member %s", r.ID, a)
		}
		for _, m := range r.Members {
			if other, ok := seen[m]; ok {
				return fmt.Errorf("hub: invariant violated: %s is in active rooms %s and %s", m, other, r.ID)
			}
			seen[m] = r.ID

			c, ok := h.reg.Get(m)
			if !ok || c.State != StatePaired || c.RoomID != r.ID {
				return fmt.Errorf("hub: invariant violated: member %s of %s is not paired to it", m, r.ID)
			}
			if h.pool.Contains(m) {
				return fmt.Errorf("hub: invariant violated: paired client %s is in the pool", m)
			}
		}
	}

	for _, e := range h.pool.entries() {
		c, ok := h.reg.Get(e.ClientID)
		if !ok || c.State != StateWaiting {
			return fmt.Errorf("hub: invariant violated: pool entry %s is not waiting", e.ClientID)
		}
	}

	var err error
	h.reg.each(func(c Client) {
		if err != nil {
			return
		}
		switch c.State {
		case StateWaiting:
			if !h.pool.Contains(c.ID) {
				err = fmt.Errorf("hub: invariant violated: waiting client %s is not in the pool", c.ID)
			}
		case StatePaired:
			if seen[c.ID] != c.RoomID {
				err = fmt.Errorf("hub: invariant violated: paired client %s has no active room", c.ID)
			}
		}
	})
	return err
}
