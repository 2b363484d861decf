package ticket

import (
	"errors"
	"fmt"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// ErrInvalidTransition is returned when a status change is not in the
// lifecycle table. The ticket is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// Transition moves a ticket to a new status after checking the lifecycle
// table against its current status.
func Transition(s Store, id string, to protocol.TicketStatus) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	if !protocol.CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s (ticket %s)", ErrInvalidTransition, t.Status, to, id)
	}
	return s.UpdateStatus(id, to)
}
