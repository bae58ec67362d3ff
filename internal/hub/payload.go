package hub

import (
	"encoding/json"
	"time"
)

// Types of messages exchanged with peers.
const (
	// Inbound.
	TypeStartChat   = "start_chat"
	TypeSendMessage = "send_message"
	TypeEndChat     = "end_chat"
	TypeCancelChat  = "cancel_chat"

	// Outbound.
	TypeChatStarted          = "chat_started"
	TypeMessage              = "message"
	TypeStrangerDisconnected = "stranger_disconnected"

	// Close frame reasons.
	TypePeerRateLimited = "peer.ratelimited"
	TypeHubFull         = "hub.full"
	TypeHubShutdown     = "hub.shutdown"
)

// FromStranger marks a relayed message. System notices carry no sender.
const FromStranger = "stranger"

// msgWrap is the envelope of every outbound message.
type msgWrap struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// msgReq is the envelope of every inbound message.
type msgReq struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type msgRoom struct {
	RoomID string `json:"room_id"`
}

type msgSend struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

type msgChat struct {
	Text string `json:"text"`
	From string `json:"from,omitempty"`
}

// emitter delivers an outbound message to a connected client.
type emitter interface {
	emit(clientID, typ string, data interface{})
}

// makePayload prepares a message payload.
func makePayload(typ string, data interface{}) []byte {
	m := msgWrap{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
	b, _ := json.Marshal(m)
	return b
}
