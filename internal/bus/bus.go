// Package bus fans agent lifecycle events out to attached observers: websocket
// clients, chat notifiers, and anything else that wants to watch tickets move.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// Observer receives broadcast events. Send must not block indefinitely; slow
// observers should queue or drop.
type Observer interface {
	ID() string
	Send(event protocol.Event) error
}

// Bus broadcasts events to all attached observers. A failing observer never
// blocks delivery to the others.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	observers map[string]Observer
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:    logger,
		observers: make(map[string]Observer),
	}
}

// Attach registers an observer. Attaching the same ID twice replaces the old
// observer.
func (b *Bus) Attach(o Observer) {
	b.mu.Lock()
	b.observers[o.ID()] = o
	b.mu.Unlock()
	b.logger.Debug("observer attached", "observer_id", o.ID())
}

// Detach removes an observer. Detaching an unknown ID is a no-op.
func (b *Bus) Detach(id string) {
	b.mu.Lock()
	delete(b.observers, id)
	b.mu.Unlock()
	b.logger.Debug("observer detached", "observer_id", id)
}

// Broadcast sends the event to every attached observer. The timestamp is
// stamped if the caller left it zero. Send errors are logged per observer and
// do not stop delivery to the rest.
func (b *Bus) Broadcast(event protocol.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	observers := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.RUnlock()

	for _, o := range observers {
		if err := o.Send(event); err != nil {
			b.logger.Warn("event delivery failed",
				"observer_id", o.ID(),
				"event_type", event.Type,
				"error", err,
			)
		}
	}
}

// Count returns the number of attached observers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}
