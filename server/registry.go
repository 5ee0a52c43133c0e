package server

import (
	"github.com/google/uuid"
	"sync"
	"time"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

type JobStatus struct {
	ID        string
	Kind      string
	State     State
	Error     string
	ExitCode  int64
	Stdout    string
	Stderr    string
	Submitted time.Time
	Started   time.Time
	Finished  time.Time
}

// registry tracks the lifecycle of jobs accepted through the service.
type registry struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*JobStatus
}

func newRegistry() *registry {
	return &registry{records: make(map[uuid.UUID]*JobStatus)}
}

func (r *registry) add(id uuid.UUID, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[id] = &JobStatus{
		ID:        id.String(),
		Kind:      kind,
		State:     StateQueued,
		Submitted: time.Now(),
	}
}

func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)
}

func (r *registry) markRunning(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.records[id]; ok {
		record.State = StateRunning
		record.Started = time.Now()
	}
}

func (r *registry) markFinished(id uuid.UUID, update func(*JobStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return
	}
	record.State = StateSucceeded
	record.Finished = time.Now()
	if update != nil {
		update(record)
	}
}

func (r *registry) get(id uuid.UUID) (JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return JobStatus{}, false
	}
	return *record, true
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

// evictFinished drops succeeded and failed records that finished before
// cutoff. Queued and running jobs are always kept.
func (r *registry) evictFinished(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, record := range r.records {
		if record.State != StateSucceeded && record.State != StateFailed {
			continue
		}
		if record.Finished.Before(cutoff) {
			delete(r.records, id)
			evicted++
		}
	}
	return evicted
}
