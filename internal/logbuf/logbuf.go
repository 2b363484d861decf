// Package logbuf keeps the most recent log records in memory so the daemon
// can serve them over the API without touching disk.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is a single captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Ring holds the last capacity entries.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

// NewRing creates a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{capacity: capacity}
}

func (r *Ring) add(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		// Shift rather than reallocate every time; drop the oldest half of
		// the overflow in one move.
		excess := len(r.entries) - r.capacity
		r.entries = append(r.entries[:0], r.entries[excess:]...)
	}
	r.mu.Unlock()
}

// Query returns entries at or above minLevel recorded since the given time,
// oldest first. A zero since means no time filter; limit <= 0 returns
// everything that matches. When limit trims the result it keeps the newest
// entries.
func (r *Ring) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Entry
	for _, e := range r.entries {
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if levelFromString(e.Level) < minLevel {
			continue
		}
		result = append(result, e)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

// Len returns how many entries are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func levelFromString(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
