package pool

import (
	"go.uber.org/zap"
	"time"
)

// Observer receives job lifecycle notifications. JobQueued and JobAbandoned
// are called from the scheduler goroutine, the others from worker
// goroutines, so implementations must be safe for concurrent use and must
// not block.
type Observer interface {
	JobQueued(info JobInfo, backlog int)
	JobStarted(info JobInfo)
	JobFinished(info JobInfo, elapsed time.Duration)
	JobFailed(info JobInfo, fault *JobFault)
	JobAbandoned(info JobInfo)
}

type NopObserver struct{}

func (NopObserver) JobQueued(JobInfo, int) {}
func (NopObserver) JobStarted(JobInfo) {}
func (NopObserver) JobFinished(JobInfo, time.Duration) {}
func (NopObserver) JobFailed(JobInfo, *JobFault) {}
func (NopObserver) JobAbandoned(JobInfo) {}

// Observers fans every notification out to each member in order.
type Observers []Observer

func (o Observers) JobQueued(info JobInfo, backlog int) {
	for _, obs := range o {
		obs.JobQueued(info, backlog)
	}
}

func (o Observers) JobStarted(info JobInfo) {
	for _, obs := range o {
		obs.JobStarted(info)
	}
}

func (o Observers) JobFinished(info JobInfo, elapsed time.Duration) {
	for _, obs := range o {
		obs.JobFinished(info, elapsed)
	}
}

func (o Observers) JobFailed(info JobInfo, fault *JobFault) {
	for _, obs := range o {
		obs.JobFailed(info, fault)
	}
}

func (o Observers) JobAbandoned(info JobInfo) {
	for _, obs := range o {
		obs.JobAbandoned(info)
	}
}

type logObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) Observer {
	return &logObserver{logger: logger}
}

func (o *logObserver) JobQueued(info JobInfo, backlog int) {
	o.logger.Debug("Job queued", zap.Uint64("job", info.Seq), zap.Int("backlog", backlog))
}

func (o *logObserver) JobStarted(info JobInfo) {
	o.logger.Debug("Job started",
		zap.Uint64("job", info.Seq),
		zap.Int("worker", info.WorkerID),
		zap.Duration("queueDelay", time.Since(info.Submitted)))
}

func (o *logObserver) JobFinished(info JobInfo, elapsed time.Duration) {
	o.logger.Debug("Job finished", zap.Uint64("job", info.Seq), zap.Int("worker", info.WorkerID), zap.Duration("elapsed", elapsed))
}

func (o *logObserver) JobFailed(info JobInfo, fault *JobFault) {
	o.logger.Error("Job panicked",
		zap.Uint64("job", info.Seq),
		zap.Int("worker", info.WorkerID),
		zap.Any("panic", fault.Value),
		zap.ByteString("stack", fault.Stack))
}

func (o *logObserver) JobAbandoned(info JobInfo) {
	o.logger.Warn("Job abandoned", zap.Uint64("job", info.Seq))
}
