package ticket

import (
	"errors"
	"testing"
	"time"

	"github.com/Greesan/babysitter/pkg/protocol"
)

func TestTransition_Allowed(t *testing.T) {
	s := newTestStore(t)
	savePending(t, s, "t-1", "a", time.Now())

	if err := Transition(s, "t-1", protocol.StatusPlanning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	got, _ := s.Get("t-1")
	if got.Status != protocol.StatusPlanning {
		t.Errorf("status = %q", got.Status)
	}
}

func TestTransition_RejectedLeavesStateUnchanged(t *testing.T) {
	s := newTestStore(t)
	savePending(t, s, "t-1", "a", time.Now())

	err := Transition(s, "t-1", protocol.StatusCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	got, _ := s.Get("t-1")
	if got.Status != protocol.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestTransition_TerminalIsFrozen(t *testing.T) {
	s := newTestStore(t)
	savePending(t, s, "t-1", "a", time.Now())
	s.UpdateStatus("t-1", protocol.StatusDone)

	err := Transition(s, "t-1", protocol.StatusPending)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}
