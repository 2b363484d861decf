package logbuf

import (
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestRing_CapacityEviction(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.add(Entry{Time: time.Now(), Level: "INFO", Message: fmt.Sprintf("msg %d", i)})
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	got := r.Query(time.Time{}, slog.LevelDebug, 0)
	if got[0].Message != "msg 2" || got[2].Message != "msg 4" {
		t.Errorf("oldest = %q, newest = %q", got[0].Message, got[2].Message)
	}
}

func TestRing_QueryFilters(t *testing.T) {
	r := NewRing(10)
	base := time.Now()
	r.add(Entry{Time: base.Add(-time.Hour), Level: "INFO", Message: "old"})
	r.add(Entry{Time: base, Level: "DEBUG", Message: "chatty"})
	r.add(Entry{Time: base, Level: "ERROR", Message: "broken"})

	got := r.Query(base.Add(-time.Minute), slog.LevelInfo, 0)
	if len(got) != 1 || got[0].Message != "broken" {
		t.Errorf("got %+v", got)
	}
}

func TestRing_QueryLimitKeepsNewest(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 5; i++ {
		r.add(Entry{Time: time.Now(), Level: "INFO", Message: fmt.Sprintf("msg %d", i)})
	}
	got := r.Query(time.Time{}, slog.LevelDebug, 2)
	if len(got) != 2 || got[1].Message != "msg 4" {
		t.Errorf("got %+v", got)
	}
}

func TestHandler_CapturesAndDelegates(t *testing.T) {
	ring := NewRing(10)
	// Inner handler only accepts warn and above; the ring still sees debug.
	inner := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(inner, ring))

	logger.Debug("low level detail", "ticket_id", "t-1")
	logger.Error("something failed", "error", fmt.Errorf("boom"))

	got := ring.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries", len(got))
	}
	if got[0].Attrs["ticket_id"] != "t-1" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	// Errors are flattened to strings so they survive JSON encoding.
	if got[1].Attrs["error"] != "boom" {
		t.Errorf("error attr = %v", got[1].Attrs["error"])
	}
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	ring := NewRing(10)
	inner := slog.NewTextHandler(discardWriter{}, nil)
	logger := slog.New(NewHandler(inner, ring)).With("component", "resolver").WithGroup("req")

	logger.Info("handled", "session_id", "s-1")

	got := ring.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 1 {
		t.Fatalf("captured %d entries", len(got))
	}
	if got[0].Attrs["component"] != "resolver" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	if got[0].Attrs["req.session_id"] != "s-1" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
