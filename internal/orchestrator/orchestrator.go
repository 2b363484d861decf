// Package orchestrator owns the claim-and-execute protocol: pull the oldest
// pending ticket, hand it to the runtime, and land it in a terminal-or-done
// state no matter how the run ends.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Greesan/babysitter/internal/bus"
	"github.com/Greesan/babysitter/internal/runtime"
	"github.com/Greesan/babysitter/internal/ticket"
	"github.com/Greesan/babysitter/pkg/protocol"
)

// Core drives tickets through their lifecycle.
type Core struct {
	store   ticket.Store
	bus     *bus.Bus
	runtime runtime.Runtime
	hooks   runtime.Hooks
	logger  *slog.Logger
	jobs    *Jobs
}

func New(store ticket.Store, b *bus.Bus, rt runtime.Runtime, h runtime.Hooks, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		store:   store,
		bus:     b,
		runtime: rt,
		hooks:   h,
		logger:  logger,
		jobs:    NewJobs(),
	}
}

// Jobs exposes the job registry for the HTTP surface.
func (c *Core) Jobs() *Jobs { return c.jobs }

// CreateTicket stores a new pending ticket and announces it. The description
// is folded into the name when present; tickets carry one line of intent and
// grow their detail in the conversation.
func (c *Core) CreateTicket(name, description string) (*protocol.Ticket, error) {
	u := uuid.New()
	t := &protocol.Ticket{
		ID:     "t-" + hex.EncodeToString(u[:4]),
		Name:   name,
		Status: protocol.StatusPending,
	}
	if description != "" {
		t.Name = name + ": " + description
	}
	if err := c.store.Save(t); err != nil {
		return nil, fmt.Errorf("orchestrator: create ticket: %w", err)
	}
	c.bus.Broadcast(protocol.Event{
		Type:       protocol.EventTicketCreated,
		TicketID:   t.ID,
		TicketName: t.Name,
	})
	c.logger.Info("ticket created", "ticket_id", t.ID, "name", t.Name)
	return t, nil
}

// Claim atomically takes the oldest pending ticket, moving it to planning.
// Returns (nil, nil) when nothing is pending.
func (c *Core) Claim() (*protocol.Ticket, error) {
	return c.store.ClaimOldestPending()
}

// Run executes a claimed ticket through the runtime and finalizes its status.
// The ticket must already be in planning.
func (c *Core) Run(ctx context.Context, t *protocol.Ticket) error {
	c.bus.Broadcast(protocol.Event{
		Type:       protocol.EventAgentStarted,
		TicketID:   t.ID,
		SessionID:  t.SessionID,
		TicketName: t.Name,
	})
	c.logger.Info("run started", "ticket_id", t.ID, "session_id", t.SessionID)

	summary, runErr := c.runtime.Run(ctx, t, c.hooks)
	return c.finalize(t, summary, runErr)
}

// finalize lands the ticket in completed or error. If a hook already moved it
// to a terminal state (the response-timeout path does), nothing more happens.
func (c *Core) finalize(t *protocol.Ticket, summary string, runErr error) error {
	current, err := c.store.Get(t.ID)
	if err != nil {
		return fmt.Errorf("orchestrator: finalize: %w", err)
	}
	if current.Status.Terminal() {
		c.logger.Info("run finished, ticket already terminal",
			"ticket_id", t.ID, "status", current.Status, "run_error", runErr)
		return runErr
	}

	if runErr == nil && current.Status == protocol.StatusWorking {
		if err := ticket.Transition(c.store, t.ID, protocol.StatusCompleted); err != nil {
			return fmt.Errorf("orchestrator: finalize: %w", err)
		}
		c.bus.Broadcast(protocol.Event{
			Type:      protocol.EventAgentComplete,
			TicketID:  t.ID,
			SessionID: t.SessionID,
			Content:   summary,
		})
		c.logger.Info("run completed", "ticket_id", t.ID)
		return nil
	}

	// Failed, or the runtime returned success from a state that cannot
	// complete (it never reached working). Either way the ticket errs out.
	reason := "runtime finished without completing the ticket"
	if runErr != nil {
		reason = runErr.Error()
	}
	if err := ticket.Transition(c.store, t.ID, protocol.StatusError); err != nil {
		return fmt.Errorf("orchestrator: finalize: %w", err)
	}
	c.bus.Broadcast(protocol.Event{
		Type:      protocol.EventAgentError,
		TicketID:  t.ID,
		SessionID: t.SessionID,
		Error:     reason,
	})
	c.logger.Warn("run failed", "ticket_id", t.ID, "error", reason)
	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("orchestrator: %s", reason)
}

// Execute drives one job: claim a ticket and run it. An empty queue is not a
// failure; the job completes with no ticket attached.
func (c *Core) Execute(ctx context.Context, jobID string) error {
	t, err := c.Claim()
	if err != nil {
		c.jobs.setError(jobID, err)
		return fmt.Errorf("orchestrator: execute: %w", err)
	}
	if t == nil {
		c.jobs.setRunning(jobID, "")
		c.jobs.setCompleted(jobID)
		c.logger.Info("no pending ticket to execute", "job_id", jobID)
		return nil
	}

	c.jobs.setRunning(jobID, t.ID)
	if err := c.Run(ctx, t); err != nil {
		c.jobs.setError(jobID, err)
		return err
	}
	c.jobs.setCompleted(jobID)
	return nil
}

// MarkDone applies the explicit human "done" action. Valid from any
// non-terminal status.
func (c *Core) MarkDone(ticketID string) error {
	if err := ticket.Transition(c.store, ticketID, protocol.StatusDone); err != nil {
		return err
	}
	c.logger.Info("ticket marked done", "ticket_id", ticketID)
	return nil
}
