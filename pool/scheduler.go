package pool

import (
	"go.uber.org/zap"
)

// scheduler is the only reader and writer of the dispatch state. Every
// transition goes through the events channel, so nothing here is locked.
type scheduler struct {
	state    *dispatchState
	events   chan event
	workers  []chan *envelope
	observer Observer
	logger   *zap.Logger

	draining  bool
	submitted uint64
	completed uint64
	faulted   uint64
	abandoned []*envelope

	// final is written once before done is closed.
	final Stats
	done  chan struct{}
}

func newScheduler(workers []chan *envelope, events chan event, ordering Ordering, observer Observer, logger *zap.Logger) *scheduler {
	return &scheduler{
		state:    newDispatchState(len(workers), ordering),
		events:   events,
		workers:  workers,
		observer: observer,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *scheduler) run() {
	defer close(s.done)

	for ev := range s.events {
		s.handle(ev)
		if s.draining && s.state.quiescent() {
			s.closeWorkers()
			s.final = s.snapshot()
			s.logger.Debug("Scheduler stopped",
				zap.Uint64("submitted", s.submitted),
				zap.Uint64("completed", s.completed),
				zap.Int("abandoned", len(s.abandoned)))
			return
		}
	}
}

func (s *scheduler) handle(ev event) {
	switch ev.kind {
	case eventNewJob:
		s.onNewJob(ev.job)
	case eventWorkerDone:
		s.onWorkerDone(ev.workerID, ev.faulted)
	case eventStop:
		s.onStop(ev.force)
	case eventStats:
		ev.reply <- s.snapshot()
	default:
		s.logger.Error("Dropping unknown scheduler event", zap.Stringer("kind", ev.kind))
	}
}

func (s *scheduler) onNewJob(env *envelope) {
	s.submitted++
	id, dispatched := s.state.admit(env)
	if !dispatched {
		s.observer.JobQueued(env.info(-1), len(s.state.backlog))
		return
	}
	s.workers[id] <- env
}

func (s *scheduler) onWorkerDone(id int, faulted bool) {
	s.completed++
	if faulted {
		s.faulted++
	}
	env, dispatched := s.state.release(id)
	if !dispatched {
		return
	}
	s.workers[id] <- env
}

func (s *scheduler) onStop(force bool) {
	s.draining = true
	if !force {
		s.logger.Debug("Draining backlog", zap.Int("backlog", len(s.state.backlog)))
		return
	}
	abandoned := s.state.abandon()
	for _, env := range abandoned {
		s.observer.JobAbandoned(env.info(-1))
	}
	s.abandoned = append(s.abandoned, abandoned...)
	if len(abandoned) > 0 {
		s.logger.Warn("Abandoned queued jobs", zap.Int("count", len(abandoned)))
	}
}

func (s *scheduler) closeWorkers() {
	s.state.closed = true
	for _, jobs := range s.workers {
		close(jobs)
	}
}

func (s *scheduler) snapshot() Stats {
	return Stats{
		Workers:   len(s.workers),
		Idle:      len(s.state.idle),
		Busy:      s.state.busyCount(),
		Backlog:   len(s.state.backlog),
		Submitted: s.submitted,
		Completed: s.completed,
		Faulted:   s.faulted,
		Abandoned: uint64(len(s.abandoned)),
		Draining:  s.draining,
		Stopped:   s.state.closed,
	}
}
