package pool

import (
	"fmt"
	"strings"
)

// Job is a one-shot unit of work. The pool calls Execute exactly once, on
// exactly one worker, and ignores anything the job produces.
//
// A panic inside Execute is recovered and reported as a *JobFault. A job
// that calls runtime.Goexit never reports back, and Shutdown will block
// waiting for its worker. A job must not call Shutdown or ShutdownNow on
// the pool running it: the drain waits for that job to finish, so the call
// deadlocks.
type Job interface {
	Execute()
}

// JobFunc adapts a plain function to Job.
type JobFunc func()

func (f JobFunc) Execute() {
	f()
}

type WorkerPool interface {
	// Submit hands a job to the scheduler. It never waits for the job to run.
	Submit(job Job) error

	// Shutdown rejects new jobs, runs everything already accepted and
	// returns once every worker has exited.
	Shutdown()

	// ShutdownNow rejects new jobs, waits for running jobs and returns the
	// queued jobs that were never dispatched.
	ShutdownNow() []Job

	Stats() Stats
}

// Ordering selects which backlog entry a freed worker receives.
type Ordering int

const (
	// OrderFIFO dispatches queued jobs in submission order.
	OrderFIFO Ordering = iota
	// OrderLIFO dispatches the most recently queued job first. Under
	// contention this reorders otherwise equal work.
	OrderLIFO
)

func (o Ordering) String() string {
	switch o {
	case OrderFIFO:
		return "fifo"
	case OrderLIFO:
		return "lifo"
	default:
		return fmt.Sprintf("ordering(%d)", int(o))
	}
}

func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return OrderFIFO, nil
	case "lifo":
		return OrderLIFO, nil
	default:
		return OrderFIFO, fmt.Errorf("unknown ordering %q", s)
	}
}

// Stats is a snapshot of the dispatch state taken by the scheduler between
// two events.
type Stats struct {
	Workers   int
	Idle      int
	Busy      int
	Backlog   int
	Submitted uint64
	Completed uint64
	Faulted   uint64
	Abandoned uint64
	Draining  bool
	Stopped   bool
}
