// Package runtime defines the contract between the orchestrator and the
// execution agent. The orchestrator claims a ticket and hands it to a Runtime
// together with hooks; the runtime does the actual work and reports back
// through them.
package runtime

import (
	"context"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// ToolEvent describes one tool execution performed by the runtime.
type ToolEvent struct {
	Name    string
	Content string
	Err     error
}

// Hooks is the runtime's window into the orchestrator. Implementations
// persist turns, move the ticket through its lifecycle, and broadcast events.
type Hooks interface {
	// OnSessionStart is called once before any work. It returns the
	// conversation so far, so a resumed ticket picks up where it left off.
	OnSessionStart(ctx context.Context, ticketID string) ([]protocol.Turn, error)
	// OnUserPromptSubmit blocks until the human answers the question or the
	// wait times out. The returned string is the response text.
	OnUserPromptSubmit(ctx context.Context, ticketID, question string) (string, error)
	// OnPostToolUse records a completed tool execution.
	OnPostToolUse(ctx context.Context, ticketID string, event ToolEvent) error
}

// Runtime executes one claimed ticket to completion. The returned string is a
// human-readable summary of the outcome.
type Runtime interface {
	Run(ctx context.Context, t *protocol.Ticket, hooks Hooks) (string, error)
}
