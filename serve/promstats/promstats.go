// Package promstats exposes the serving core's counters as Prometheus
// collectors. A nil *Collectors is valid and records nothing.
package promstats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inference_serve"

// Collectors groups every metric the serving path records.
type Collectors struct {
	cacheLookups     *prometheus.CounterVec
	cacheEvictions   prometheus.Counter
	cacheEntries     prometheus.Gauge
	batches          *prometheus.CounterVec
	batchSize        prometheus.Histogram
	batchWait        prometheus.Histogram
	backendDuration  prometheus.Histogram
	backendFailures  prometheus.Counter
	requestDuration  *prometheus.HistogramVec
	scaleDecisions   *prometheus.CounterVec
	instances        prometheus.Gauge
	degenerateInputs prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of prediction cache lookups by result",
		}, []string{"result"}),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted from the prediction cache",
		}),
		cacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of live entries in the prediction cache",
		}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "batches_total",
			Help:      "Total number of batches released by flush reason",
		}, []string{"reason"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "batch_size",
			Help:      "Number of items per released batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		batchWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "batch_wait_seconds",
			Help:      "Time the first item of a batch waited before release",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		backendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Backend batch scoring time",
			Buckets:   prometheus.DefBuckets,
		}),
		backendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "failures_total",
			Help:      "Total number of batches failed by the backend",
		}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "predict",
			Name:      "request_duration_seconds",
			Help:      "End-to-end predict latency by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		scaleDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scaler",
			Name:      "decisions_total",
			Help:      "Total number of scale decisions by applied direction",
		}, []string{"decision"}),
		instances: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scaler",
			Name:      "instances",
			Help:      "Instance count after the latest scale decision",
		}),
		degenerateInputs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "predict",
			Name:      "degenerate_inputs_total",
			Help:      "Total number of requests rejected as degenerate input",
		}),
	}
}

// CacheLookup records one cache lookup.
func (c *Collectors) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		c.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// CacheEviction records one eviction.
func (c *Collectors) CacheEviction() {
	if c == nil {
		return
	}
	c.cacheEvictions.Inc()
}

// CacheEntries sets the live entry count.
func (c *Collectors) CacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// BatchReleased records a released batch.
func (c *Collectors) BatchReleased(reason string, size int, wait time.Duration) {
	if c == nil {
		return
	}
	c.batches.WithLabelValues(reason).Inc()
	c.batchSize.Observe(float64(size))
	c.batchWait.Observe(wait.Seconds())
}

// BackendCall records one backend call and whether it failed.
func (c *Collectors) BackendCall(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.backendDuration.Observe(d.Seconds())
	if err != nil {
		c.backendFailures.Inc()
	}
}

// Request records one predict call by outcome ("hit", "miss", "error").
func (c *Collectors) Request(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// DegenerateInput records one rejected request.
func (c *Collectors) DegenerateInput() {
	if c == nil {
		return
	}
	c.degenerateInputs.Inc()
}

// ScaleDecision records an applied decision ("up", "down", "hold") and the
// resulting instance count.
func (c *Collectors) ScaleDecision(decision string, instances int) {
	if c == nil {
		return
	}
	c.scaleDecisions.WithLabelValues(decision).Inc()
	c.instances.Set(float64(instances))
}
