package pool

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWorkerCount = errors.New("worker count must be positive")
	ErrNilJob             = errors.New("nil job")
	ErrRejectedSubmission = errors.New("no new jobs are accepted by a pool that is shutting down")

	// ErrUnreachableDispatch is raised as a panic when the scheduler is
	// asked to hand a job to a worker that is busy or already closed.
	ErrUnreachableDispatch = errors.New("unreachable dispatch")
)

// JobFault describes a job that panicked. The worker that ran it survives.
type JobFault struct {
	WorkerID int
	Seq      uint64
	Value    any
	Stack    []byte
}

func (f *JobFault) Error() string {
	return fmt.Sprintf("job %d panicked on worker %d: %v", f.Seq, f.WorkerID, f.Value)
}

func (f *JobFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}
