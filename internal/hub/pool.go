package hub

import (
	"container/list"
	"time"
)

// WaitingEntry is a client waiting to be paired.
type WaitingEntry struct {
	ClientID   string
	EnqueuedAt time.Time
}

// Pool is the FIFO queue of clients waiting for a stranger. Like the
// Registry, it is owned by the Hub's event loop.
type Pool struct {
	q     *list.List
	index map[string]*list.Element
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{
		q:     list.New(),
		index: make(map[string]*list.Element),
	}
}

// Enqueue appends a client to the back of the queue.
func (p *Pool) Enqueue(id string) error {
	if _, ok := p.index[id]; ok {
		return ErrAlreadyWaiting
	}
	p.index[id] = p.q.PushBack(WaitingEntry{ClientID: id, EnqueuedAt: time.Now()})
	return nil
}

// DequeueOldest removes and returns the entry at the front of the queue.
func (p *Pool) DequeueOldest() (WaitingEntry, bool) {
	el := p.q.Front()
	if el == nil {
		return WaitingEntry{}, false
	}
	e := p.q.Remove(el).(WaitingEntry)
	delete(p.index, e.ClientID)
	return e, true
}

// Remove drops a client from the queue. It reports whether the client was
// queued; removing an absent client is a no-op.
func (p *Pool) Remove(id string) bool {
	el, ok := p.index[id]
	if !ok {
		return false
	}
	p.q.Remove(el)
	delete(p.index, id)
	return true
}

// Contains reports whether a client is queued.
func (p *Pool) Contains(id string) bool {
	_, ok := p.index[id]
	return ok
}

// Len returns the number of waiting clients.
func (p *Pool) Len() int {
	return p.q.Len()
}

// entries returns the queue front to back.
func (p *Pool) entries() []WaitingEntry {
	out := make([]WaitingEntry, 0, p.q.Len())
	for el := p.q.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(WaitingEntry))
	}
	return out
}
