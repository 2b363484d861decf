package bus

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Greesan/babysitter/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// Responder accepts user responses pulled off the wire. The websocket layer
// acks every response frame; whether it reached a waiter is the responder's
// business.
type Responder interface {
	Deliver(sessionID, response string)
}

// WSHub upgrades HTTP connections to websockets and bridges them onto the
// bus: every connected client becomes an observer, and inbound user_response
// frames are handed to the responder.
type WSHub struct {
	bus       *Bus
	responder Responder
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHub(b *Bus, responder Responder, logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHub{
		bus:       b,
		responder: responder,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The REST layer handles auth; the socket accepts any origin
			// so browser dashboards on other hosts can attach.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	h.bus.Attach(c)
	h.logger.Info("websocket client connected", "observer_id", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	h.readPump(c)

	h.bus.Detach(c.id)
	c.close()
	h.logger.Info("websocket client disconnected", "observer_id", c.id)
}

func (h *WSHub) readPump(c *wsClient) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "observer_id", c.id, "error", err)
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("malformed client message", "observer_id", c.id, "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			c.enqueueControl(protocol.ControlMessage{Type: "pong"})
		case "user_response":
			if msg.SessionID == "" {
				h.logger.Warn("user_response without session_id", "observer_id", c.id)
				continue
			}
			h.responder.Deliver(msg.SessionID, msg.Response)
			// Ack unconditionally; a late response is still a received one.
			c.enqueueControl(protocol.ControlMessage{Type: "ack", SessionID: msg.SessionID, Status: "received"})
		default:
			h.logger.Debug("ignoring client message", "observer_id", c.id, "type", msg.Type)
		}
	}
}

// wsClient is one connected websocket peer. All writes go through the send
// queue so the write pump is the only goroutine touching the connection for
// output.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
}

func (c *wsClient) ID() string { return c.id }

// Send queues an event for the client. A full queue means the client has
// stopped draining; the event is dropped and an error returned so the bus can
// log it.
func (c *wsClient) Send(event protocol.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.New("client closed")
	case c.send <- data:
		return nil
	default:
		return errors.New("send queue full")
	}
}

func (c *wsClient) enqueueControl(msg protocol.ControlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("dropping control message, queue full", "observer_id", c.id)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) close() {
	close(c.done)
	c.conn.Close()
}
