package hub

import "fmt"

// Pairer matches idle clients with the oldest waiting stranger. Its
// match-or-enqueue decision is only atomic because it runs on the Hub's
// event loop together with every other state change.
type Pairer struct {
	reg   *Registry
	pool  *Pool
	rooms *RoomManager
}

// NewPairer returns a Pairer over the given components.
func NewPairer(reg *Registry, pool *Pool, rooms *RoomManager) *Pairer {
	return &Pairer{reg: reg, pool: pool, rooms: rooms}
}

// Request pairs an idle client with the oldest waiting client. If a room
// is formed it is returned and both members are Paired; otherwise the
// client is queued, becomes Waiting, and the returned room is nil.
func (p *Pairer) Request(id string) (*Room, error) {
	c, ok := p.reg.Get(id)
	if !ok {
		return nil, ErrUnknownClient
	}
	if c.State != StateIdle {
		return nil, ErrInvalidState
	}

	if e, ok := p.pool.DequeueOldest(); ok {
		if e.ClientID == id {
			panic(fmt.Sprintf("hub: invariant violated: idle client %q found in the waiting pool", id))
		}
		peer, ok := p.reg.Get(e.ClientID)
		if !ok || peer.State != StateWaiting {
			panic(fmt.Sprintf("hub: invariant violated: pool entry %q is not a waiting client", e.ClientID))
		}

		r := p.rooms.Create(e.ClientID, id)
		p.reg.mustSetState(e.ClientID, StatePaired, r.ID)
		p.reg.mustSetState(id, StatePaired, r.ID)
		return r, nil
	}

	if err := p.pool.Enqueue(id); err != nil {
		return nil, err
	}
	p.reg.mustSetState(id, StateWaiting, "")
	return nil, nil
}

// Cancel takes a waiting client out of the pool and makes it idle again.
func (p *Pairer) Cancel(id string) error {
	c, ok := p.reg.Get(id)
	if !ok {
		return ErrUnknownClient
	}
	if c.State != StateWaiting {
		return ErrInvalidState
	}
	p.pool.Remove(id)
	p.reg.mustSetState(id, StateIdle, "")
	return nil
}
