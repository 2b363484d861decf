package bus

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Greesan/babysitter/pkg/protocol"
)

type fakeResponder struct {
	mu        sync.Mutex
	delivered map[string]string
}

func (f *fakeResponder) Deliver(sessionID, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered == nil {
		f.delivered = make(map[string]string)
	}
	f.delivered[sessionID] = response
}

func (f *fakeResponder) get(sessionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[sessionID]
}

func newWSTest(t *testing.T) (*Bus, *fakeResponder, *websocket.Conn) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	b := New(logger)
	responder := &fakeResponder{}
	hub := NewWSHub(b, responder, logger)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Attach happens inside the handler; wait for it.
	deadline := time.Now().Add(time.Second)
	for b.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never attached to bus")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return b, responder, conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
}

func TestWSHub_BroadcastReachesClient(t *testing.T) {
	b, _, conn := newWSTest(t)

	b.Broadcast(protocol.Event{
		Type:     protocol.EventAgentQuestion,
		TicketID: "t-1",
		Content:  "Which environment?",
	})

	var got protocol.Event
	readJSON(t, conn, &got)
	if got.Type != protocol.EventAgentQuestion {
		t.Errorf("type = %q", got.Type)
	}
	if got.Content != "Which environment?" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestWSHub_PingPong(t *testing.T) {
	_, _, conn := newWSTest(t)

	if err := conn.WriteJSON(protocol.ClientMessage{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got protocol.ControlMessage
	readJSON(t, conn, &got)
	if got.Type != "pong" {
		t.Errorf("type = %q, want pong", got.Type)
	}
}

func TestWSHub_UserResponseDeliveredAndAcked(t *testing.T) {
	_, responder, conn := newWSTest(t)

	err := conn.WriteJSON(protocol.ClientMessage{
		Type:      "user_response",
		SessionID: "sess-1",
		Response:  "yes, proceed",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var ack protocol.ControlMessage
	readJSON(t, conn, &ack)
	if ack.Type != "ack" || ack.SessionID != "sess-1" {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Status != "received" {
		t.Errorf("ack status = %q, want received", ack.Status)
	}
	if got := responder.get("sess-1"); got != "yes, proceed" {
		t.Errorf("delivered = %q", got)
	}
}

func TestWSHub_DisconnectDetaches(t *testing.T) {
	b, _, conn := newWSTest(t)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observer still attached after disconnect, count = %d", b.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSHub_MalformedMessageIgnored(t *testing.T) {
	_, _, conn := newWSTest(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Connection survives; a ping still gets a pong.
	if err := conn.WriteJSON(protocol.ClientMessage{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got protocol.ControlMessage
	readJSON(t, conn, &got)
	if got.Type != "pong" {
		t.Errorf("type = %q, want pong", got.Type)
	}
}
