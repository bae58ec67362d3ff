// Package ledger keeps a record of room lifecycles off the hub's event
// loop. Records are written to a store and, optionally, published to a
// message bus for other services to consume.
package ledger

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/moodmuffin/strangerchat/internal/hub"
	"github.com/moodmuffin/strangerchat/store"
)

// Kinds of ledger events.
const (
	KindOpened = "opened"
	KindClosed = "closed"
)

// DefaultRecordAge is used when Config.RecordAge is not set.
const DefaultRecordAge = 24 * time.Hour

// Publisher publishes a payload to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config represents the ledger config.
type Config struct {
	// TTL of a room record in the store.
	RecordAge time.Duration

	// Subject prefix events are published under.
	Subject string

	QueueSize int
}

// Event is the payload published for every room change.
type Event struct {
	Kind string     `json:"kind"`
	Room store.Room `json:"room"`
}

// Ledger records room changes asynchronously. It implements hub.Recorder.
type Ledger struct {
	cfg   Config
	store store.Store
	pub   Publisher
	log   *log.Logger

	q      chan Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a new Ledger and starts its writer. pub is optional.
func New(cfg Config, st store.Store, pub Publisher, l *log.Logger) *Ledger {
	if cfg.RecordAge <= 0 {
		cfg.RecordAge = DefaultRecordAge
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	lg := &Ledger{
		cfg:   cfg,
		store: st,
		pub:   pub,
		log:   l,
		q:     make(chan Event, cfg.QueueSize),
	}
	lg.wg.Add(1)
	go lg.run()
	return lg
}

// RoomOpened queues the record of a new room.
func (lg *Ledger) RoomOpened(r hub.Room) {
	lg.push(Event{Kind: KindOpened, Room: toRecord(r)})
}

// RoomClosed queues the record of a closed room.
func (lg *Ledger) RoomClosed(r hub.Room) {
	lg.push(Event{Kind: KindClosed, Room: toRecord(r)})
}

// Close stops accepting events and waits for queued ones to be written.
func (lg *Ledger) Close() {
	lg.mu.Lock()
	if lg.closed {
		lg.mu.Unlock()
		return
	}
	lg.closed = true
	close(lg.q)
	lg.mu.Unlock()

	lg.wg.Wait()
}

// push queues an event without blocking. Events are dropped when the
// queue is full.
func (lg *Ledger) push(e Event) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	if lg.closed {
		return
	}

	select {
	case lg.q <- e:
	default:
		lg.log.Printf("ledger queue full: dropped %s event for %s", e.Kind, e.Room.ID)
	}
}

// run writes queued events until the queue is closed.
func (lg *Ledger) run() {
	defer lg.wg.Done()
	for e := range lg.q {
		lg.write(e)
	}
}

func (lg *Ledger) write(e Event) {
	var err error
	switch e.Kind {
	case KindOpened:
		err = lg.store.AddRoom(e.Room, lg.cfg.RecordAge)
	case KindClosed:
		err = lg.store.CloseRoom(e.Room)
	}
	if err != nil {
		lg.log.Printf("error writing %s record for %s: %v", e.Kind, e.Room.ID, err)
	}

	if lg.pub == nil {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		lg.log.Printf("error encoding %s event: %v", e.Kind, err)
		return
	}
	if err := lg.pub.Publish(lg.cfg.Subject+"."+e.Kind, b); err != nil {
		lg.log.Printf("error publishing %s event for %s: %v", e.Kind, e.Room.ID, err)
	}
}

// toRecord strips a room down to what is kept in the ledger.
func toRecord(r hub.Room) store.Room {
	out := store.Room{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Messages:  r.Messages,
	}
	if r.Status == hub.RoomClosed {
		out.ClosedAt = r.ClosedAt
		out.Reason = string(r.Reason)
	}
	return out
}
