package pool

import (
	"runtime/debug"
	"sync"
	"time"
)

type worker struct {
	id       int
	jobs     <-chan *envelope
	events   chan<- event
	observer Observer
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for env := range w.jobs {
		faulted := w.execute(env)
		w.events <- event{kind: eventWorkerDone, workerID: w.id, faulted: faulted}
	}
}

// execute runs the job and converts a panic into a JobFault so one bad job
// can't take a worker slot away from the pool.
func (w *worker) execute(env *envelope) (faulted bool) {
	info := env.info(w.id)
	w.observer.JobStarted(info)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			faulted = true
			w.observer.JobFailed(info, &JobFault{
				WorkerID: w.id,
				Seq:      env.seq,
				Value:    r,
				Stack:    debug.Stack(),
			})
			return
		}
		w.observer.JobFinished(info, time.Since(start))
	}()

	env.job.Execute()
	return false
}
