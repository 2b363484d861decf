package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusPending         TicketStatus = "pending"
	StatusPlanning        TicketStatus = "planning"
	StatusWorking         TicketStatus = "working"
	StatusRequestingInput TicketStatus = "requesting_input"
	StatusCompleted       TicketStatus = "completed"
	StatusError           TicketStatus = "error"
	// StatusDone is reachable only by an explicit human action, never by the
	// agent path, and is terminal from any non-terminal state.
	StatusDone TicketStatus = "done"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TicketStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusDone:
		return true
	}
	return false
}

// transitions is the set of allowed status edges. Anything not listed here
// is rejected by CanTransition.
var transitions = map[TicketStatus][]TicketStatus{
	StatusPending:         {StatusPlanning, StatusDone},
	StatusPlanning:        {StatusWorking, StatusError, StatusDone},
	StatusWorking:         {StatusRequestingInput, StatusCompleted, StatusError, StatusDone},
	StatusRequestingInput: {StatusWorking, StatusError, StatusDone},
}

// CanTransition reports whether moving a ticket from one status to the other
// is a valid lifecycle edge.
func CanTransition(from, to TicketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	RoleAgentQuestion TurnRole = "agent_question"
	RoleUserResponse  TurnRole = "user_response"
	RoleToolCall      TurnRole = "tool_call"
)

// Turn is one append-only entry in a ticket's conversation log. Turns are
// never mutated or reordered after append.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ToolName  string    `json:"tool_name,omitempty"`
	Error     bool      `json:"error,omitempty"`
}

// Ticket is a unit of agent work with persistent status and conversation
// history. The store owns the durable record; the orchestrator holds a
// transient view during execution.
type Ticket struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Status       TicketStatus `json:"status"`
	SessionID    string       `json:"session_id,omitempty"`
	TurnCount    int          `json:"turn_count"`
	Conversation []Turn       `json:"conversation,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
