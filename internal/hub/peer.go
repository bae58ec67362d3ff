package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Peer represents an individual websocket connection to the hub.
type Peer struct {
	ID string

	ws  *websocket.Conn
	hub *Hub

	// Channel for outbound messages.
	dataQ       chan []byte
	writerDone  chan struct{}
	mu          sync.Mutex
	closed      bool
	closeReason string

	// Rate limiting.
	numMessages int
	windowStart time.Time
}

// NewPeer returns a new instance of Peer. It has to be registered with
// Hub.Connect before RunWriter and RunListener are started.
func NewPeer(id string, ws *websocket.Conn, h *Hub) *Peer {
	size := h.cfg.MaxMessageQueue
	if size <= 0 {
		size = 100
	}
	return &Peer{
		ID:         id,
		ws:         ws,
		hub:        h,
		dataQ:      make(chan []byte, size),
		writerDone: make(chan struct{}),
	}
}

// RunListener is a blocking function that reads incoming messages from a peer's
// WS connection until its dropped or there's an error. This should be invoked
// as a goroutine.
func (p *Peer) RunListener() {
	if p.hub.cfg.MaxMessageLen > 0 {
		p.ws.SetReadLimit(int64(p.hub.cfg.MaxMessageLen))
	}
	p.ws.SetReadDeadline(time.Now().Add(pongWait))
	p.ws.SetPongHandler(func(string) error {
		p.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, m, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.log.Printf("error reading from %s: %v", p.ID, err)
			}
			break
		}

		// Nothing more is accepted from a peer that is being closed.
		if p.isClosed() {
			break
		}
		p.processMessage(m)
	}

	// WS connection is closed.
	if err := p.hub.Disconnect(p.ID); err != nil && !errors.Is(err, ErrHubStopped) {
		p.hub.log.Printf("error disconnecting %s: %v", p.ID, err)
	}
	p.Close("")

	// Let the writer send its close frame first.
	select {
	case <-p.writerDone:
	case <-time.After(p.hub.cfg.WSTimeout):
	}
	p.ws.Close()
}

// RunWriter is a blocking function that writes messages in a peer's queue to the
// peer's WS connection. This should be invoked as a goroutine.
func (p *Peer) RunWriter() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.ws.Close()
		close(p.writerDone)
	}()

	for {
		select {
		// Wait for outgoing message to appear in the channel.
		case message, ok := <-p.dataQ:
			if !ok {
				p.mu.Lock()
				reason := p.closeReason
				p.mu.Unlock()
				p.writeWSData(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
				return
			}
			if err := p.writeWSData(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := p.writeWSData(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendData queues a message to be written to the peer's WS. Messages to a
// peer whose queue is full are dropped.
func (p *Peer) SendData(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	select {
	case p.dataQ <- b:
	default:
		p.hub.log.Printf("dropped message to %s: queue full", p.ID)
	}
}

// Close stops the peer's writer, which sends a close frame with the given
// reason. It is safe to call more than once.
func (p *Peer) Close(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.closeReason = reason
	close(p.dataQ)
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Reject closes a connection that the hub refused to register.
func (p *Peer) Reject(reason string) {
	p.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason),
		time.Now().Add(p.hub.cfg.WSTimeout))
	p.ws.Close()
}

// writeWSData writes the given payload to the peer's WS connection.
func (p *Peer) writeWSData(msgType int, payload []byte) error {
	p.ws.SetWriteDeadline(time.Now().Add(p.hub.cfg.WSTimeout))
	return p.ws.WriteMessage(msgType, payload)
}

// processMessage processes incoming messages from peers.
func (p *Peer) processMessage(b []byte) {
	var m msgReq
	if err := json.Unmarshal(b, &m); err != nil {
		return
	}

	var err error
	switch m.Type {
	case TypeStartChat:
		err = p.hub.StartChat(p.ID)

	case TypeCancelChat:
		err = p.hub.CancelChat(p.ID)

	// Message to the stranger.
	case TypeSendMessage:
		if p.rateLimited() {
			p.hub.log.Printf("%s rate limited", p.ID)
			p.Close(TypePeerRateLimited)
			return
		}

		var d msgSend
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return
		}
		err = p.hub.SendMessage(p.ID, d.RoomID, d.Message)

	case TypeEndChat:
		var d msgRoom
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return
		}
		err = p.hub.EndChat(p.ID, d.RoomID)

	default:
		return
	}

	// A stale send_message or end_chat after the room closed is normal.
	if err != nil && !errors.Is(err, ErrRoomClosed) && !errors.Is(err, ErrHubStopped) {
		p.hub.log.Printf("%s: %s: %v", p.ID, m.Type, err)
	}
}

// rateLimited counts a message against the peer's rate limit window and
// reports whether the limit has been exceeded.
func (p *Peer) rateLimited() bool {
	max := p.hub.cfg.RateLimitMessages
	if max <= 0 {
		return false
	}

	now := time.Now()
	if now.Sub(p.windowStart) > p.hub.cfg.RateLimitInterval {
		p.windowStart = now
		p.numMessages = 0
	}
	p.numMessages++
	return p.numMessages > max
}
