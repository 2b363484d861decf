package bus

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/Greesan/babysitter/pkg/protocol"
)

type recordingObserver struct {
	id  string
	err error

	mu     sync.Mutex
	events []protocol.Event
}

func (o *recordingObserver) ID() string { return o.id }

func (o *recordingObserver) Send(event protocol.Event) error {
	if o.err != nil {
		return o.err
	}
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
	return nil
}

func (o *recordingObserver) received() []protocol.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]protocol.Event(nil), o.events...)
}

func newTestBus() *Bus {
	return New(slog.New(slog.DiscardHandler))
}

func TestBroadcast_AllObserversReceive(t *testing.T) {
	b := newTestBus()
	a := &recordingObserver{id: "a"}
	c := &recordingObserver{id: "c"}
	b.Attach(a)
	b.Attach(c)

	b.Broadcast(protocol.Event{Type: protocol.EventTicketCreated, TicketID: "t-1"})

	for _, o := range []*recordingObserver{a, c} {
		got := o.received()
		if len(got) != 1 {
			t.Fatalf("observer %s received %d events", o.id, len(got))
		}
		if got[0].TicketID != "t-1" {
			t.Errorf("observer %s: ticket_id = %q", o.id, got[0].TicketID)
		}
		if got[0].Timestamp.IsZero() {
			t.Errorf("observer %s: timestamp not stamped", o.id)
		}
	}
}

func TestBroadcast_FailingObserverDoesNotBlockOthers(t *testing.T) {
	b := newTestBus()
	bad := &recordingObserver{id: "bad", err: errors.New("connection reset")}
	good := &recordingObserver{id: "good"}
	b.Attach(bad)
	b.Attach(good)

	b.Broadcast(protocol.Event{Type: protocol.EventAgentComplete, TicketID: "t-1"})

	if got := good.received(); len(got) != 1 {
		t.Fatalf("healthy observer received %d events", len(got))
	}
}

func TestDetach(t *testing.T) {
	b := newTestBus()
	o := &recordingObserver{id: "a"}
	b.Attach(o)
	b.Detach("a")
	b.Detach("never-attached")

	b.Broadcast(protocol.Event{Type: protocol.EventAgentStarted})

	if got := o.received(); len(got) != 0 {
		t.Errorf("detached observer received %d events", len(got))
	}
	if b.Count() != 0 {
		t.Errorf("count = %d", b.Count())
	}
}

func TestAttach_SameIDReplaces(t *testing.T) {
	b := newTestBus()
	old := &recordingObserver{id: "a"}
	replacement := &recordingObserver{id: "a"}
	b.Attach(old)
	b.Attach(replacement)

	b.Broadcast(protocol.Event{Type: protocol.EventAgentStarted})

	if got := old.received(); len(got) != 0 {
		t.Errorf("replaced observer received %d events", len(got))
	}
	if got := replacement.received(); len(got) != 1 {
		t.Errorf("replacement received %d events", len(got))
	}
	if b.Count() != 1 {
		t.Errorf("count = %d", b.Count())
	}
}
