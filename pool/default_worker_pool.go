package pool

import (
	"DispatchEngine/log"
	"go.uber.org/zap"
	"sync"
	"sync/atomic"
	"time"
)

// Pool runs submitted jobs on a fixed set of workers. A single scheduler
// goroutine assigns jobs to idle workers and queues the rest.
type Pool struct {
	workerCount int
	scheduler   *scheduler
	workers     sync.WaitGroup
	logger      *zap.Logger

	seq atomic.Uint64

	// mu orders Submit against the start of shutdown: once closed is set
	// no further job reaches the scheduler.
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

var _ WorkerPool = (*Pool)(nil)

func NewPool(workerCount int, opts ...Option) (*Pool, error) {
	if workerCount <= 0 {
		return nil, ErrInvalidWorkerCount
	}

	o := options{eventBuffer: defaultEventBuffer, ordering: OrderFIFO}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.L().Named("pool")
	}
	observer := append(Observers{NewLogObserver(o.logger)}, o.observers...)

	events := make(chan event, o.eventBuffer)
	jobChannels := make([]chan *envelope, workerCount)
	for i := range jobChannels {
		// A worker is only handed a job while idle, so one slot is enough
		// for the scheduler never to block on dispatch.
		jobChannels[i] = make(chan *envelope, 1)
	}

	p := &Pool{
		workerCount: workerCount,
		scheduler:   newScheduler(jobChannels, events, o.ordering, observer, o.logger),
		logger:      o.logger,
	}

	p.workers.Add(workerCount)
	for id := 0; id < workerCount; id++ {
		w := &worker{id: id, jobs: jobChannels[id], events: events, observer: observer}
		go w.run(&p.workers)
	}
	go p.scheduler.run()

	p.logger.Debug("Worker pool started", zap.Int("workers", workerCount), zap.Stringer("ordering", o.ordering))
	return p, nil
}

func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrRejectedSubmission
	}

	p.scheduler.events <- event{
		kind: eventNewJob,
		job: &envelope{
			seq:       p.seq.Add(1),
			job:       job,
			submitted: time.Now(),
		},
	}
	return nil
}

func (p *Pool) Shutdown() {
	p.stop(false)
}

func (p *Pool) ShutdownNow() []Job {
	return p.stop(true)
}

func (p *Pool) stop(force bool) []Job {
	var abandoned []Job
	p.stopOnce.Do(func() {
		start := time.Now()

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.scheduler.events <- event{kind: eventStop, force: force}
		<-p.scheduler.done
		p.workers.Wait()

		for _, env := range p.scheduler.abandoned {
			abandoned = append(abandoned, env.job)
		}
		p.logger.Debug("Worker pool stopped",
			zap.Bool("force", force),
			zap.Int("abandoned", len(abandoned)),
			zap.Duration("elapsed", time.Since(start)))
	})
	return abandoned
}

func (p *Pool) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case p.scheduler.events <- event{kind: eventStats, reply: reply}:
	case <-p.scheduler.done:
		return p.scheduler.final
	}

	select {
	case stats := <-reply:
		return stats
	case <-p.scheduler.done:
		return p.scheduler.final
	}
}

func (p *Pool) WorkerCount() int {
	return p.workerCount
}
