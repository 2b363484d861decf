package orchestrator

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// Jobs is the process-local job registry. Jobs exist only for the lifetime of
// the daemon; they are how a webhook caller tracks the execution it triggered.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]protocol.Job
}

func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]protocol.Job)}
}

func newJobID() string {
	u := uuid.New()
	return "job-" + hex.EncodeToString(u[:4])
}

// Create registers a new queued job and returns it.
func (j *Jobs) Create() protocol.Job {
	job := protocol.Job{
		ID:        newJobID(),
		Status:    protocol.JobQueued,
		CreatedAt: time.Now(),
	}
	j.mu.Lock()
	j.jobs[job.ID] = job
	j.mu.Unlock()
	return job
}

// Get returns a copy of the job, or false if the ID is unknown.
func (j *Jobs) Get(id string) (protocol.Job, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	job, ok := j.jobs[id]
	return job, ok
}

func (j *Jobs) setRunning(id, ticketID string) {
	j.update(id, func(job *protocol.Job) {
		job.Status = protocol.JobRunning
		job.TicketID = ticketID
	})
}

func (j *Jobs) setCompleted(id string) {
	j.update(id, func(job *protocol.Job) {
		job.Status = protocol.JobCompleted
	})
}

func (j *Jobs) setError(id string, err error) {
	j.update(id, func(job *protocol.Job) {
		job.Status = protocol.JobError
		job.Error = err.Error()
	})
}

func (j *Jobs) update(id string, fn func(*protocol.Job)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return
	}
	fn(&job)
	j.jobs[id] = job
}
