// Package metrics exports the dispatch loop of a store to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/engine"
)

// Collector implements engine.Metrics with Prometheus collectors.
//
// Bound generic action types are labelled by their generic form
// ("SET:*" for "SET:/todos/3") to keep label cardinality bounded.
type Collector struct {
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	changedPaths prometheus.Histogram
	flushes      prometheus.Counter
	queueDepth   prometheus.Gauge
	streamErrors prometheus.Counter
	quotaHits    prometheus.Counter
}

var _ engine.Metrics = (*Collector)(nil)

// New creates the collectors under namespace and registers them with reg.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "passes_total",
			Help:      "Update passes run, by action type.",
		}, []string{"action_type"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one update pass.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"action_type"}),
		changedPaths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "pass_changed_paths",
			Help:      "Node paths changed by one update pass.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "flushes_total",
			Help:      "Coalesced listener notifications.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "queue_depth",
			Help:      "Dispatches waiting for the current drain.",
		}),
		streamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stream_errors_total",
			Help:      "Process pipeline errors that reached the store.",
		}),
		quotaHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "quota_exceeded_total",
			Help:      "Drains aborted by the max steps quota.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.passes, c.passDuration, c.changedPaths, c.flushes,
		c.queueDepth, c.streamErrors, c.quotaHits,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObservePass implements engine.Metrics.
func (c *Collector) ObservePass(actionType string, duration time.Duration, changed int) {
	label := typeLabel(actionType)
	c.passes.WithLabelValues(label).Inc()
	c.passDuration.WithLabelValues(label).Observe(duration.Seconds())
	c.changedPaths.Observe(float64(changed))
}

// ObserveFlush implements engine.Metrics.
func (c *Collector) ObserveFlush(int) {
	c.flushes.Inc()
}

// SetQueueDepth implements engine.Metrics.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// IncStreamErrors implements engine.Metrics.
func (c *Collector) IncStreamErrors() {
	c.streamErrors.Inc()
}

// IncQuotaExceeded implements engine.Metrics.
func (c *Collector) IncQuotaExceeded() {
	c.quotaHits.Inc()
}

func typeLabel(t string) string {
	d, err := action.ParseType(t)
	if err != nil {
		return "invalid"
	}
	if d.Bound {
		return d.GenericType()
	}
	return t
}
