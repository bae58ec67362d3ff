package hub

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// fakeSink records everything the hub writes to a client.
type fakeSink struct {
	mu          sync.Mutex
	msgs        []received
	closed      bool
	closeReason string
}

func (s *fakeSink) SendData(b []byte) {
	var m received
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
}

func (s *fakeSink) Close(reason string) {
	s.mu.Lock()
	s.closed = true
	s.closeReason = reason
	s.mu.Unlock()
}

func (s *fakeSink) messages() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]received, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *fakeSink) types() []string {
	var out []string
	for _, m := range s.messages() {
		out = append(out, m.Type)
	}
	return out
}

// chats returns the decoded "message" payloads.
func (s *fakeSink) chats(t *testing.T) []msgChat {
	var out []msgChat
	for _, m := range s.messages() {
		if m.Type != TypeMessage {
			continue
		}
		var c msgChat
		require.NoError(t, json.Unmarshal(m.Data, &c))
		out = append(out, c)
	}
	return out
}

// roomID returns the room of the last chat_started notification.
func (s *fakeSink) roomID(t *testing.T) string {
	var id string
	for _, m := range s.messages() {
		if m.Type != TypeChatStarted {
			continue
		}
		var r msgRoom
		require.NoError(t, json.Unmarshal(m.Data, &r))
		id = r.RoomID
	}
	return id
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

// fakeRecorder records room lifecycle changes.
type fakeRecorder struct {
	mu     sync.Mutex
	opened []Room
	closed []Room
}

func (r *fakeRecorder) RoomOpened(rm Room) {
	r.mu.Lock()
	r.opened = append(r.opened, rm)
	r.mu.Unlock()
}

func (r *fakeRecorder) RoomClosed(rm Room) {
	r.mu.Lock()
	r.closed = append(r.closed, rm)
	r.mu.Unlock()
}

func (r *fakeRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.opened), len(r.closed)
}

// fakeEmitter records relayed messages for RoomManager tests.
type fakeEmitter struct {
	out []emitted
}

type emitted struct {
	to   string
	typ  string
	data interface{}
}

func (e *fakeEmitter) emit(clientID, typ string, data interface{}) {
	e.out = append(e.out, emitted{to: clientID, typ: typ, data: data})
}

type stopFilter struct{}

func (stopFilter) Flagged(text string) bool { return text == "forbidden" }
func (stopFilter) Notice() string           { return "not allowed" }

func testConfig() *Config {
	return &Config{
		WSTimeout:       5 * time.Second,
		MaxMessageQueue: 10,
		ClosedRoomTTL:   time.Minute,
		Greeting:        "You are now connected to a stranger!",
		CheckInvariants: true,
	}
}

// newTestHub starts a hub that is stopped when the test ends.
func newTestHub(t *testing.T, cfg *Config, rec Recorder, f Filter) *Hub {
	t.Helper()
	h := NewHub(cfg, rec, f, testLogger())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// connect registers a client with a fresh fake sink.
func connect(t *testing.T, h *Hub, id string) *fakeSink {
	t.Helper()
	s := &fakeSink{}
	require.NoError(t, h.Connect(id, s))
	return s
}
