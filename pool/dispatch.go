package pool

import (
	"fmt"
)

// dispatchState is owned by the scheduler goroutine and never shared.
//
// A worker id sits in idle iff the worker holds no job and waits for one;
// the backlog is non-empty only while idle is empty.
type dispatchState struct {
	ordering Ordering
	backlog  []*envelope
	idle     []int
	busy     []bool
	closed   bool
}

func newDispatchState(workerCount int, ordering Ordering) *dispatchState {
	s := &dispatchState{
		ordering: ordering,
		idle:     make([]int, 0, workerCount),
		busy:     make([]bool, workerCount),
	}
	// Worker 0 ends up on top of the stack and receives the first job.
	for id := workerCount - 1; id >= 0; id-- {
		s.idle = append(s.idle, id)
	}
	return s
}

// admit returns the worker that must run env, or false if env was queued.
func (s *dispatchState) admit(env *envelope) (int, bool) {
	if len(s.idle) == 0 {
		s.backlog = append(s.backlog, env)
		return -1, false
	}
	last := len(s.idle) - 1
	id := s.idle[last]
	s.idle = s.idle[:last]
	s.assign(id)
	return id, true
}

// release marks worker id as finished and returns the queued job it must
// run next, or false if the worker went back to idle.
func (s *dispatchState) release(id int) (*envelope, bool) {
	if id < 0 || id >= len(s.busy) {
		panic(fmt.Errorf("%w: unknown worker %d", ErrUnreachableDispatch, id))
	}
	if !s.busy[id] {
		panic(fmt.Errorf("%w: worker %d reported completion while idle", ErrUnreachableDispatch, id))
	}
	s.busy[id] = false

	if len(s.backlog) == 0 {
		s.idle = append(s.idle, id)
		return nil, false
	}
	env := s.next()
	s.assign(id)
	return env, true
}

func (s *dispatchState) assign(id int) {
	if s.closed {
		panic(fmt.Errorf("%w: worker %d is closed", ErrUnreachableDispatch, id))
	}
	if s.busy[id] {
		panic(fmt.Errorf("%w: worker %d is busy", ErrUnreachableDispatch, id))
	}
	s.busy[id] = true
}

func (s *dispatchState) next() *envelope {
	var env *envelope
	if s.ordering == OrderLIFO {
		last := len(s.backlog) - 1
		env = s.backlog[last]
		s.backlog[last] = nil
		s.backlog = s.backlog[:last]
		return env
	}
	env = s.backlog[0]
	s.backlog[0] = nil
	s.backlog = s.backlog[1:]
	return env
}

// abandon empties the backlog and returns what it held, oldest first.
func (s *dispatchState) abandon() []*envelope {
	abandoned := s.backlog
	s.backlog = nil
	return abandoned
}

// quiescent reports whether no job is queued and every worker is idle.
func (s *dispatchState) quiescent() bool {
	return len(s.backlog) == 0 && len(s.idle) == len(s.busy)
}

func (s *dispatchState) busyCount() int {
	n := 0
	for _, b := range s.busy {
		if b {
			n++
		}
	}
	return n
}

func (s *dispatchState) consistent() bool {
	if len(s.backlog) > 0 && len(s.idle) > 0 {
		return false
	}
	seen := make(map[int]struct{}, len(s.idle))
	for _, id := range s.idle {
		if id < 0 || id >= len(s.busy) || s.busy[id] {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return len(s.idle)+s.busyCount() == len(s.busy)
}
