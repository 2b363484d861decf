package protocol

import "time"

// EventType identifies a broadcast event on the realtime channel.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventAgentStarted  EventType = "agent_started"
	EventAgentQuestion EventType = "agent_question"
	EventToolCall      EventType = "tool_call"
	EventAgentComplete EventType = "agent_complete"
	EventAgentError    EventType = "agent_error"
)

// Event is a progress notification pushed to every connected observer.
// TicketID, SessionID and Timestamp are always set by the bus.
type Event struct {
	Type       EventType `json:"type"`
	TicketID   string    `json:"ticket_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TicketName string    `json:"ticket_name,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolError  bool      `json:"tool_error,omitempty"`
	Turn       int       `json:"turn,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ClientMessage is an inbound message from an observer connection.
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Response  string `json:"response,omitempty"`
}

// ControlMessage is a direct (non-broadcast) reply to one observer:
// pong for ping, ack for user_response.
type ControlMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
}
