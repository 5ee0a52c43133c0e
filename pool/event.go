package pool

import (
	"time"
)

type eventKind uint8

const (
	eventNewJob eventKind = iota
	eventWorkerDone
	eventStop
	eventStats
)

func (k eventKind) String() string {
	switch k {
	case eventNewJob:
		return "new_job"
	case eventWorkerDone:
		return "worker_done"
	case eventStop:
		return "stop"
	case eventStats:
		return "stats"
	default:
		return "unknown"
	}
}

type event struct {
	kind eventKind

	// eventNewJob
	job *envelope

	// eventWorkerDone
	workerID int
	faulted  bool

	// eventStop
	force bool

	// eventStats
	reply chan<- Stats
}

type envelope struct {
	seq       uint64
	job       Job
	submitted time.Time
}

func (e *envelope) info(workerID int) JobInfo {
	return JobInfo{
		Seq:       e.seq,
		WorkerID:  workerID,
		Submitted: e.submitted,
	}
}

// JobInfo identifies a job in observer callbacks. WorkerID is -1 until the
// job has been dispatched.
type JobInfo struct {
	Seq       uint64
	WorkerID  int
	Submitted time.Time
}
