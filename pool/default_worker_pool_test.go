package pool

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingObserver struct {
	mu        sync.Mutex
	started   []JobInfo
	finished  []JobInfo
	failed    []*JobFault
	queued    int
	abandoned []JobInfo
}

func (r *recordingObserver) JobQueued(JobInfo, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued++
}

func (r *recordingObserver) JobStarted(info JobInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, info)
}

func (r *recordingObserver) JobFinished(info JobInfo, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, info)
}

func (r *recordingObserver) JobFailed(_ JobInfo, fault *JobFault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, fault)
}

func (r *recordingObserver) JobAbandoned(info JobInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = append(r.abandoned, info)
}

func newTestPool(t *testing.T, workers int, opts ...Option) *Pool {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	p, err := NewPool(workers, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestNewPool_InvalidWorkerCount(t *testing.T) {
	for _, n := range []int{0, -1} {
		p, err := NewPool(n)

		assert.ErrorIs(t, err, ErrInvalidWorkerCount)
		assert.Nil(t, p)
	}
}

func TestPool_SubmitNilJob(t *testing.T) {
	p := newTestPool(t, 1)

	assert.ErrorIs(t, p.Submit(nil), ErrNilJob)
}

func TestPool_NoJobLoss(t *testing.T) {
	p := newTestPool(t, 4)

	var executed atomic.Int64
	const jobs = 500
	for iter := 0; iter < jobs; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() {
			executed.Add(1)
		})))
	}
	p.Shutdown()

	assert.Equal(t, int64(jobs), executed.Load())
	stats := p.Stats()
	assert.Equal(t, uint64(jobs), stats.Submitted)
	assert.Equal(t, uint64(jobs), stats.Completed)
	assert.True(t, stats.Stopped)
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	p := newTestPool(t, 3)

	var executed atomic.Int64
	var wg sync.WaitGroup
	for iter := 0; iter < 8; iter++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iter := 0; iter < 50; iter++ {
				assert.NoError(t, p.Submit(JobFunc(func() {
					executed.Add(1)
				})))
			}
		}()
	}
	wg.Wait()
	p.Shutdown()

	assert.Equal(t, int64(400), executed.Load())
}

func TestPool_BoundedConcurrency(t *testing.T) {
	const workers = 3
	p := newTestPool(t, workers)

	var running, peak atomic.Int32
	for iter := 0; iter < 60; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})))
	}
	p.Shutdown()

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Equal(t, int32(workers), peak.Load())
}

func TestPool_NoDuplicateDispatch(t *testing.T) {
	rec := &recordingObserver{}
	p := newTestPool(t, 4, WithObserver(rec))

	for iter := 0; iter < 200; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() {})))
	}
	p.Shutdown()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := make(map[uint64]struct{})
	for _, info := range rec.started {
		_, dup := seen[info.Seq]
		assert.False(t, dup, "job %d started twice", info.Seq)
		seen[info.Seq] = struct{}{}
	}
	assert.Len(t, seen, 200)
	assert.Len(t, rec.finished, 200)
}

func TestPool_RejectedAfterShutdown(t *testing.T) {
	p := newTestPool(t, 2)
	p.Shutdown()

	var executed atomic.Bool
	err := p.Submit(JobFunc(func() {
		executed.Store(true)
	}))

	assert.ErrorIs(t, err, ErrRejectedSubmission)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, executed.Load())
}

func TestPool_FaultIsolation(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := &recordingObserver{}
	p, err := NewPool(1, WithLogger(zap.New(core)), WithObserver(rec))
	require.NoError(t, err)

	boom := errors.New("boom")
	var after atomic.Bool
	require.NoError(t, p.Submit(JobFunc(func() {
		panic(boom)
	})))
	require.NoError(t, p.Submit(JobFunc(func() {
		after.Store(true)
	})))
	p.Shutdown()

	assert.True(t, after.Load())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.failed, 1)
	assert.Equal(t, 0, rec.failed[0].WorkerID)
	assert.ErrorIs(t, rec.failed[0], boom)
	assert.NotEmpty(t, rec.failed[0].Stack)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, 0, rec.finished[0].WorkerID)
	assert.Equal(t, 1, logs.FilterMessage("Job panicked").Len())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Faulted)
	assert.Equal(t, uint64(2), stats.Completed)
}

func TestPool_TwoWorkersFiveSleepingJobs(t *testing.T) {
	p := newTestPool(t, 2)

	var done atomic.Int32
	start := time.Now()
	for iter := 0; iter < 5; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() {
			time.Sleep(50 * time.Millisecond)
			done.Add(1)
		})))
	}
	p.Shutdown()
	elapsed := time.Since(start)

	assert.Equal(t, int32(5), done.Load())
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	// Three batches of 50ms (150ms) must stay under the 4x50ms bound of
	// 200ms; the extra 50ms is scheduling slack for loaded CI machines.
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestPool_ShutdownWithoutJobsReturnsImmediately(t *testing.T) {
	p := newTestPool(t, 3)

	start := time.Now()
	p.Shutdown()

	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 3, p.Stats().Idle)
}

func TestPool_SingleWorkerRunsJobsSequentially(t *testing.T) {
	p := newTestPool(t, 1)

	var mu sync.Mutex
	var trace []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		trace = append(trace, s)
	}

	require.NoError(t, p.Submit(JobFunc(func() {
		record("A start")
		time.Sleep(30 * time.Millisecond)
		record("A done")
	})))
	require.NoError(t, p.Submit(JobFunc(func() {
		record("B start")
	})))
	p.Shutdown()

	assert.Equal(t, []string{"A start", "A done", "B start"}, trace)
}

func TestPool_Ordering(t *testing.T) {
	tests := []struct {
		ordering Ordering
		expected []int
	}{
		{ordering: OrderFIFO, expected: []int{1, 2, 3}},
		{ordering: OrderLIFO, expected: []int{3, 2, 1}},
	}

	for _, tc := range tests {
		t.Run(tc.ordering.String(), func(t *testing.T) {
			p := newTestPool(t, 1, WithOrdering(tc.ordering))

			release := make(chan struct{})
			var got []int
			require.NoError(t, p.Submit(JobFunc(func() { <-release })))
			for i := 1; i <= 3; i++ {
				i := i
				require.NoError(t, p.Submit(JobFunc(func() { got = append(got, i) })))
			}
			close(release)
			p.Shutdown()

			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPool_ShutdownNowAbandonsBacklog(t *testing.T) {
	rec := &recordingObserver{}
	p := newTestPool(t, 1, WithObserver(rec))

	release := make(chan struct{})
	var ran atomic.Int32
	first := JobFunc(func() {
		<-release
		ran.Add(1)
	})
	require.NoError(t, p.Submit(first))
	for iter := 0; iter < 2; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() { ran.Add(1) })))
	}

	result := make(chan []Job, 1)
	go func() {
		result <- p.ShutdownNow()
	}()
	require.Eventually(t, func() bool {
		return p.Stats().Draining
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, p.Submit(JobFunc(func() {})), ErrRejectedSubmission)
	close(release)

	var abandoned []Job
	select {
	case abandoned = <-result:
	case <-time.After(time.Second):
		t.Fatal("ShutdownNow did not return")
	}

	assert.Len(t, abandoned, 2)
	assert.Equal(t, int32(1), ran.Load())
	rec.mu.Lock()
	assert.Len(t, rec.abandoned, 2)
	rec.mu.Unlock()
	assert.Equal(t, uint64(2), p.Stats().Abandoned)
}

func TestPool_ShutdownWaitsForBacklog(t *testing.T) {
	p := newTestPool(t, 2)

	var executed atomic.Int32
	for iter := 0; iter < 10; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() {
			time.Sleep(5 * time.Millisecond)
			executed.Add(1)
		})))
	}
	p.Shutdown()

	assert.Equal(t, int32(10), executed.Load())
	stats := p.Stats()
	assert.Zero(t, stats.Backlog)
	assert.Zero(t, stats.Busy)
	assert.Zero(t, stats.Abandoned)
}

func TestPool_ShutdownIsIdempotent(t *testing.T) {
	p := newTestPool(t, 2)

	release := make(chan struct{})
	require.NoError(t, p.Submit(JobFunc(func() { <-release })))

	var wg sync.WaitGroup
	for iter := 0; iter < 3; iter++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Shutdown()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	p.Shutdown()
	assert.Nil(t, p.ShutdownNow())
}

func TestPool_StatsRespectInvariant(t *testing.T) {
	p := newTestPool(t, 3)

	for iter := 0; iter < 100; iter++ {
		require.NoError(t, p.Submit(JobFunc(func() {
			time.Sleep(100 * time.Microsecond)
		})))
		stats := p.Stats()
		if stats.Backlog > 0 {
			assert.Zero(t, stats.Idle)
		}
		assert.Equal(t, stats.Workers, stats.Idle+stats.Busy)
		assert.LessOrEqual(t, stats.Busy, 3)
	}
	p.Shutdown()
}

func TestJobFault_Unwrap(t *testing.T) {
	cause := errors.New("cause")

	assert.ErrorIs(t, &JobFault{Value: cause}, cause)
	assert.Nil(t, (&JobFault{Value: "text"}).Unwrap())
	assert.Equal(t, "job 7 panicked on worker 2: text", (&JobFault{WorkerID: 2, Seq: 7, Value: "text"}).Error())
}

func TestParseOrdering(t *testing.T) {
	o, err := ParseOrdering("LIFO")
	require.NoError(t, err)
	assert.Equal(t, OrderLIFO, o)

	o, err = ParseOrdering("")
	require.NoError(t, err)
	assert.Equal(t, OrderFIFO, o)

	_, err = ParseOrdering("random")
	assert.Error(t, err)
}
