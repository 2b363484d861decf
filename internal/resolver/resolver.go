// Package resolver matches agent questions to user responses. A response can
// arrive over two channels: pushed through the event fabric (Deliver) or
// polled from the ticket store's mailbox column. Whichever channel produces a
// response first wins; the other copy is discarded.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Greesan/babysitter/internal/ticket"
)

var (
	// ErrResponseTimeout is returned when no response arrives on either
	// channel before the wait deadline.
	ErrResponseTimeout = errors.New("timed out waiting for user response")
	// ErrAlreadyWaiting is returned when a second waiter registers for a
	// session that already has one.
	ErrAlreadyWaiting = errors.New("a waiter is already registered for this session")
)

const (
	defaultPollInterval = time.Second
	defaultBufferTTL    = 5 * time.Minute
)

type cellState int

const (
	// cellBuffered holds a response pushed before any waiter registered.
	cellBuffered cellState = iota
	// cellWaiting has an active Wait call attached.
	cellWaiting
	// cellExpired is a tombstone left by a timed-out wait. Pushes that
	// arrive while it stands are discarded.
	cellExpired
)

type cell struct {
	state    cellState
	buffered string
	ch       chan string
	expires  time.Time
}

// Resolver owns one response cell per session. Cells are single-assignment:
// a wait consumes exactly one response, then the cell is gone.
type Resolver struct {
	store        ticket.Store
	logger       *slog.Logger
	pollInterval time.Duration
	bufferTTL    time.Duration

	mu    sync.Mutex
	cells map[string]*cell
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPollInterval overrides how often the store mailbox is polled during a
// wait.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) { r.pollInterval = d }
}

// WithBufferTTL overrides how long early responses and timeout tombstones are
// kept.
func WithBufferTTL(d time.Duration) Option {
	return func(r *Resolver) { r.bufferTTL = d }
}

func New(store ticket.Store, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store:        store,
		logger:       logger,
		pollInterval: defaultPollInterval,
		bufferTTL:    defaultBufferTTL,
		cells:        make(map[string]*cell),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait blocks until a response for sessionID arrives, either pushed via
// Deliver or found in ticketID's store mailbox, whichever happens first.
// Returns ErrResponseTimeout after timeout and ErrAlreadyWaiting if another
// goroutine is already waiting on the session.
func (r *Resolver) Wait(ctx context.Context, sessionID, ticketID string, timeout time.Duration) (string, error) {
	r.mu.Lock()
	c := r.cells[sessionID]
	if c != nil {
		switch c.state {
		case cellWaiting:
			r.mu.Unlock()
			return "", ErrAlreadyWaiting
		case cellBuffered:
			if time.Now().Before(c.expires) {
				response := c.buffered
				delete(r.cells, sessionID)
				r.mu.Unlock()
				return response, nil
			}
			// Stale buffer; fall through and wait fresh.
		case cellExpired:
			// A new wait supersedes the old tombstone.
		}
	}
	c = &cell{state: cellWaiting, ch: make(chan string, 1)}
	r.cells[sessionID] = c
	r.mu.Unlock()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case response := <-c.ch:
			r.finish(sessionID)
			return response, nil
		case <-ticker.C:
			response, err := r.store.TakeUserResponse(ticketID)
			if err != nil {
				r.logger.Warn("resolver: mailbox poll failed", "ticket_id", ticketID, "error", err)
				continue
			}
			if response != "" {
				r.finish(sessionID)
				return response, nil
			}
		case <-deadline.C:
			if response, ok := r.expire(sessionID, c); ok {
				return response, nil
			}
			return "", ErrResponseTimeout
		case <-ctx.Done():
			r.finish(sessionID)
			return "", ctx.Err()
		}
	}
}

// DeliveryResult reports what happened to a pushed response.
type DeliveryResult int

const (
	// Delivered means an active waiter consumed the response.
	Delivered DeliveryResult = iota
	// Buffered means no waiter was registered; the response is held until
	// the buffer TTL passes or a wait arrives.
	Buffered
	// Discarded means the wait for this session already timed out.
	Discarded
)

// Deliver pushes a response for a session. The first response to reach a
// waiter wins; anything after that, or after a timeout, is dropped.
func (r *Resolver) Deliver(sessionID, response string) DeliveryResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cells[sessionID]
	if c == nil {
		r.cells[sessionID] = &cell{
			state:    cellBuffered,
			buffered: response,
			expires:  time.Now().Add(r.bufferTTL),
		}
		return Buffered
	}
	switch c.state {
	case cellWaiting:
		select {
		case c.ch <- response:
			return Delivered
		default:
			// A response is already in flight for this waiter.
			return Discarded
		}
	case cellExpired:
		if time.Now().Before(c.expires) {
			r.logger.Debug("resolver: discarding response after timeout", "session_id", sessionID)
			return Discarded
		}
		// Tombstone lapsed; treat as a fresh early push.
		c.state = cellBuffered
		c.buffered = response
		c.expires = time.Now().Add(r.bufferTTL)
		return Buffered
	default: // cellBuffered
		if time.Now().Before(c.expires) {
			// Single assignment: the first buffered response stands.
			return Discarded
		}
		c.buffered = response
		c.expires = time.Now().Add(r.bufferTTL)
		return Buffered
	}
}

// Purge drops buffered responses and tombstones whose TTL has passed. Active
// waiters are never touched.
func (r *Resolver) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, c := range r.cells {
		if c.state != cellWaiting && now.After(c.expires) {
			delete(r.cells, id)
			removed++
		}
	}
	return removed
}

func (r *Resolver) finish(sessionID string) {
	r.mu.Lock()
	delete(r.cells, sessionID)
	r.mu.Unlock()
}

// expire tombstones the waiter's cell after a deadline. A push can win the
// channel send in the instant between the deadline firing and this lock
// being taken; that push was reported Delivered, so consume it here instead
// of timing out.
func (r *Resolver) expire(sessionID string, c *cell) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case response := <-c.ch:
		if r.cells[sessionID] == c {
			delete(r.cells, sessionID)
		}
		return response, true
	default:
	}

	// Only tombstone the cell we own; a newer wait may have replaced it.
	if r.cells[sessionID] == c {
		c.state = cellExpired
		c.expires = time.Now().Add(r.bufferTTL)
	}
	return "", false
}
