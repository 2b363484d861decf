package protocol

import "time"

// JobStatus is the state of one background execution.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// Job tracks a single webhook-triggered execution. Jobs are process-local
// and are not persisted beyond the daemon's lifetime. TicketID is resolved
// lazily at claim time and may differ from the id in the triggering payload.
type Job struct {
	ID        string    `json:"job_id"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
