package ticket

import "github.com/Greesan/babysitter/pkg/protocol"

// Store is the persistence contract for tickets and their conversation logs.
// The conversation is persisted as an ordered JSON array attached to the
// ticket record; AppendTurn keeps turn_count equal to the array length.
type Store interface {
	// Save creates or updates a ticket.
	Save(t *protocol.Ticket) error
	// Get retrieves a ticket by ID, including its conversation.
	Get(id string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(filter Filter) ([]*protocol.Ticket, error)
	// ClaimOldestPending atomically moves the oldest pending ticket to
	// planning and returns it. Returns (nil, nil) when nothing is pending.
	// A session ID is assigned if the ticket has none.
	ClaimOldestPending() (*protocol.Ticket, error)
	// UpdateStatus changes a ticket's status. It does not check the
	// transition table; that is the orchestrator's job.
	UpdateStatus(id string, status protocol.TicketStatus) error
	// AppendTurn appends a turn to the conversation and updates turn_count
	// to the new conversation length in the same transaction.
	AppendTurn(id string, turn protocol.Turn) error
	// ReadConversation returns the ordered conversation log.
	ReadConversation(id string) ([]protocol.Turn, error)
	// SetUserResponse writes the poll-channel mailbox field.
	SetUserResponse(id, response string) error
	// TakeUserResponse reads and clears the mailbox field atomically.
	// Returns "" when no response is waiting.
	TakeUserResponse(id string) (string, error)
}

// Filter constrains ticket list queries.
type Filter struct {
	Status *protocol.TicketStatus
	Limit  int // 0 = no limit
}
