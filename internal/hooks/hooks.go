// Package hooks implements the runtime's callback surface. Each hook persists
// its turn, moves the ticket through the lifecycle, and broadcasts the
// matching event, so every observable side effect of a run flows through one
// place.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Greesan/babysitter/internal/bus"
	"github.com/Greesan/babysitter/internal/runtime"
	"github.com/Greesan/babysitter/internal/ticket"
	"github.com/Greesan/babysitter/pkg/protocol"
)

const defaultWaitTimeout = 30 * time.Minute

// Waiter blocks for a user response, whichever channel it arrives on.
type Waiter interface {
	Wait(ctx context.Context, sessionID, ticketID string, timeout time.Duration) (string, error)
}

// Adapters implements runtime.Hooks against the store, resolver, and bus.
type Adapters struct {
	store       ticket.Store
	waiter      Waiter
	bus         *bus.Bus
	logger      *slog.Logger
	waitTimeout time.Duration
}

func New(store ticket.Store, waiter Waiter, b *bus.Bus, logger *slog.Logger) *Adapters {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapters{
		store:       store,
		waiter:      waiter,
		bus:         b,
		logger:      logger,
		waitTimeout: defaultWaitTimeout,
	}
}

// SetWaitTimeout overrides how long OnUserPromptSubmit waits for an answer.
func (a *Adapters) SetWaitTimeout(d time.Duration) { a.waitTimeout = d }

// OnSessionStart loads the conversation, repairs a drifted turn_count, and
// moves the ticket from planning to working.
func (a *Adapters) OnSessionStart(ctx context.Context, ticketID string) ([]protocol.Turn, error) {
	t, err := a.store.Get(ticketID)
	if err != nil {
		return nil, fmt.Errorf("hooks: session start: %w", err)
	}

	if t.TurnCount != len(t.Conversation) {
		a.logger.Warn("turn count out of sync, repairing",
			"ticket_id", ticketID,
			"turn_count", t.TurnCount,
			"conversation_len", len(t.Conversation),
		)
		t.TurnCount = len(t.Conversation)
		if err := a.store.Save(t); err != nil {
			return nil, fmt.Errorf("hooks: session start: %w", err)
		}
	}

	if err := ticket.Transition(a.store, ticketID, protocol.StatusWorking); err != nil {
		return nil, fmt.Errorf("hooks: session start: %w", err)
	}
	return t.Conversation, nil
}

// OnUserPromptSubmit records the question, parks the ticket in
// requesting_input, and blocks until the human answers or the wait times out.
// A timeout fails the ticket; the runtime gets the error back and must stop.
func (a *Adapters) OnUserPromptSubmit(ctx context.Context, ticketID, question string) (string, error) {
	t, err := a.store.Get(ticketID)
	if err != nil {
		return "", fmt.Errorf("hooks: prompt: %w", err)
	}

	err = a.store.AppendTurn(ticketID, protocol.Turn{
		Role:      protocol.RoleAgentQuestion,
		Content:   question,
		Timestamp: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("hooks: prompt: %w", err)
	}
	if err := ticket.Transition(a.store, ticketID, protocol.StatusRequestingInput); err != nil {
		return "", fmt.Errorf("hooks: prompt: %w", err)
	}

	a.bus.Broadcast(protocol.Event{
		Type:      protocol.EventAgentQuestion,
		TicketID:  ticketID,
		SessionID: t.SessionID,
		Content:   question,
	})

	answer, err := a.waiter.Wait(ctx, t.SessionID, ticketID, a.waitTimeout)
	if err != nil {
		a.logger.Warn("wait for user response failed",
			"ticket_id", ticketID,
			"session_id", t.SessionID,
			"error", err,
		)
		if terr := ticket.Transition(a.store, ticketID, protocol.StatusError); terr != nil {
			a.logger.Error("failed to move ticket to error", "ticket_id", ticketID, "error", terr)
		}
		a.bus.Broadcast(protocol.Event{
			Type:      protocol.EventAgentError,
			TicketID:  ticketID,
			SessionID: t.SessionID,
			Error:     err.Error(),
		})
		return "", fmt.Errorf("hooks: prompt: %w", err)
	}

	err = a.store.AppendTurn(ticketID, protocol.Turn{
		Role:      protocol.RoleUserResponse,
		Content:   answer,
		Timestamp: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("hooks: prompt: %w", err)
	}
	if err := ticket.Transition(a.store, ticketID, protocol.StatusWorking); err != nil {
		return "", fmt.Errorf("hooks: prompt: %w", err)
	}
	return answer, nil
}

// OnPostToolUse records a tool execution. It never changes the ticket status.
func (a *Adapters) OnPostToolUse(ctx context.Context, ticketID string, event runtime.ToolEvent) error {
	t, err := a.store.Get(ticketID)
	if err != nil {
		return fmt.Errorf("hooks: tool use: %w", err)
	}

	turn := protocol.Turn{
		Role:      protocol.RoleToolCall,
		Content:   event.Content,
		Timestamp: time.Now(),
		ToolName:  event.Name,
		Error:     event.Err != nil,
	}
	if err := a.store.AppendTurn(ticketID, turn); err != nil {
		return fmt.Errorf("hooks: tool use: %w", err)
	}

	a.bus.Broadcast(protocol.Event{
		Type:      protocol.EventToolCall,
		TicketID:  ticketID,
		SessionID: t.SessionID,
		ToolName:  event.Name,
		Content:   event.Content,
		ToolError: event.Err != nil,
	})
	return nil
}
