package ticket

import (
	"log/slog"
	"time"

	"github.com/Greesan/babysitter/pkg/protocol"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
)

// Retrying wraps a Store with bounded retry and exponential backoff on every
// operation. Only transport-level failures (an unreachable or busy backing
// store) are worth retrying, but the store cannot distinguish them reliably,
// so everything is retried. The operations are idempotent except AppendTurn,
// whose retry after a failed commit is safe: a failed transaction leaves no
// partial write.
type Retrying struct {
	Inner    Store
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

// NewRetrying creates a Retrying store with defaults.
func NewRetrying(inner Store, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{Inner: inner, Attempts: defaultAttempts, Backoff: defaultBackoff, Logger: logger}
}

func (r *Retrying) attempts() int {
	if r.Attempts > 0 {
		return r.Attempts
	}
	return defaultAttempts
}

func (r *Retrying) backoff() time.Duration {
	if r.Backoff > 0 {
		return r.Backoff
	}
	return defaultBackoff
}

func (r *Retrying) do(op string, fn func() error) error {
	delay := r.backoff()
	var err error
	for attempt := 1; attempt <= r.attempts(); attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt < r.attempts() {
			r.Logger.Warn("store operation failed, retrying",
				"op", op,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

func (r *Retrying) Save(t *protocol.Ticket) error {
	return r.do("save", func() error { return r.Inner.Save(t) })
}

func (r *Retrying) Get(id string) (*protocol.Ticket, error) {
	var t *protocol.Ticket
	err := r.do("get", func() error {
		var err error
		t, err = r.Inner.Get(id)
		return err
	})
	return t, err
}

func (r *Retrying) List(filter Filter) ([]*protocol.Ticket, error) {
	var ts []*protocol.Ticket
	err := r.do("list", func() error {
		var err error
		ts, err = r.Inner.List(filter)
		return err
	})
	return ts, err
}

func (r *Retrying) ClaimOldestPending() (*protocol.Ticket, error) {
	var t *protocol.Ticket
	err := r.do("claim", func() error {
		var err error
		t, err = r.Inner.ClaimOldestPending()
		return err
	})
	return t, err
}

func (r *Retrying) UpdateStatus(id string, status protocol.TicketStatus) error {
	return r.do("update_status", func() error { return r.Inner.UpdateStatus(id, status) })
}

func (r *Retrying) AppendTurn(id string, turn protocol.Turn) error {
	return r.do("append_turn", func() error { return r.Inner.AppendTurn(id, turn) })
}

func (r *Retrying) ReadConversation(id string) ([]protocol.Turn, error) {
	var turns []protocol.Turn
	err := r.do("read_conversation", func() error {
		var err error
		turns, err = r.Inner.ReadConversation(id)
		return err
	})
	return turns, err
}

func (r *Retrying) SetUserResponse(id, response string) error {
	return r.do("set_user_response", func() error { return r.Inner.SetUserResponse(id, response) })
}

func (r *Retrying) TakeUserResponse(id string) (string, error) {
	var response string
	err := r.do("take_user_response", func() error {
		var err error
		response, err = r.Inner.TakeUserResponse(id)
		return err
	})
	return response, err
}
