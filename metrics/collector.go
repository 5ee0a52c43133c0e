package metrics

import (
	"DispatchEngine/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

const namespace = "dispatch_engine"

// Collector records pool lifecycle notifications as Prometheus metrics.
type Collector struct {
	queued    prometheus.Counter
	started   prometheus.Counter
	finished  prometheus.Counter
	failed    prometheus.Counter
	abandoned prometheus.Counter
	running   prometheus.Gauge
	queueWait prometheus.Histogram
	execution prometheus.Histogram
}

var _ pool.Observer = (*Collector)(nil)

func NewCollector(registerer prometheus.Registerer) (*Collector, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "jobs", Name: name, Help: help})
	}
	c := &Collector{
		queued:    counter("queued_total", "Jobs that found no idle worker and entered the backlog."),
		started:   counter("started_total", "Jobs handed to a worker."),
		finished:  counter("finished_total", "Jobs that returned normally."),
		failed:    counter("failed_total", "Jobs that panicked."),
		abandoned: counter("abandoned_total", "Queued jobs dropped by a forced shutdown."),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Jobs currently executing.",
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queue_wait_seconds",
			Help:      "Time between submission and start of execution.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		execution: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "execution_seconds",
			Help:      "Time spent executing jobs that returned normally.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, collector := range []prometheus.Collector{c.queued, c.started, c.finished, c.failed, c.abandoned, c.running, c.queueWait, c.execution} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) JobQueued(pool.JobInfo, int) {
	c.queued.Inc()
}

func (c *Collector) JobStarted(info pool.JobInfo) {
	c.started.Inc()
	c.running.Inc()
	if !info.Submitted.IsZero() {
		c.queueWait.Observe(time.Since(info.Submitted).Seconds())
	}
}

func (c *Collector) JobFinished(_ pool.JobInfo, elapsed time.Duration) {
	c.running.Dec()
	c.finished.Inc()
	c.execution.Observe(elapsed.Seconds())
}

func (c *Collector) JobFailed(pool.JobInfo, *pool.JobFault) {
	c.running.Dec()
	c.failed.Inc()
}

func (c *Collector) JobAbandoned(pool.JobInfo) {
	c.abandoned.Inc()
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
