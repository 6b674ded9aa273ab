package serve

import (
	"time"

	"github.com/montanaflynn/stats"
)

// DefaultWindowLength is the default span of a metrics Window.
const DefaultWindowLength = 60 * time.Second

type observation struct {
	at    time.Time
	value time.Duration
}

// WindowStats is a point-in-time view of a Window.
type WindowStats struct {
	LengthSeconds float64 `json:"length_seconds"`
	Requests      int     `json:"requests"`
	BusySamples   int     `json:"busy_samples"`
	LatencyP50Ms  float64 `json:"latency_p50_ms"`
	LatencyP99Ms  float64 `json:"latency_p99_ms"`
	Metrics       Metrics `json:"metrics"`
}

// Window keeps request latencies and backend busy time over a sliding
// time span and reduces them to a Metrics snapshot. Observations must be
// recorded in non-decreasing time order.
//
// Window is not safe for concurrent use.
type Window struct {
	length   time.Duration
	requests []observation // request completion time, latency
	busy     []observation // backend call end time, call duration
}

// NewWindow creates a Window spanning length.
func NewWindow(length time.Duration) (*Window, error) {
	if length <= 0 {
		return nil, InvalidConfig("window length must be > 0, got %v", length)
	}
	return &Window{length: length}, nil
}

// Length returns the window span.
func (w *Window) Length() time.Duration { return w.length }

// ObserveRequest records one served request and its end-to-end latency.
func (w *Window) ObserveRequest(at time.Time, latency time.Duration) {
	w.requests = append(w.requests, observation{at: at, value: latency})
}

// ObserveBusy records a backend call of duration d that finished at end.
func (w *Window) ObserveBusy(end time.Time, d time.Duration) {
	w.busy = append(w.busy, observation{at: end, value: d})
}

// Prune drops observations at or before now-length.
func (w *Window) Prune(now time.Time) {
	cutoff := now.Add(-w.length)
	w.requests = dropBefore(w.requests, cutoff)
	w.busy = dropBefore(w.busy, cutoff)
}

func dropBefore(obs []observation, cutoff time.Time) []observation {
	i := 0
	for i < len(obs) && !obs[i].at.After(cutoff) {
		i++
	}
	if i == 0 {
		return obs
	}
	return append(obs[:0], obs[i:]...)
}

// Snapshot prunes the window and reduces it to Metrics. CPU usage is the
// fraction of window time the backend was busy, spread over instances and
// clamped to [0, 1]. An empty window yields all zeros.
func (w *Window) Snapshot(now time.Time, instances int) Metrics {
	w.Prune(now)
	var m Metrics

	seconds := w.length.Seconds()
	m.RequestRate = float64(len(w.requests)) / seconds

	if len(w.requests) > 0 {
		var total time.Duration
		for _, o := range w.requests {
			total += o.value
		}
		m.AvgLatencyMs = float64(total) / float64(len(w.requests)) / float64(time.Millisecond)
	}

	var busy time.Duration
	for _, o := range w.busy {
		busy += o.value
	}
	capacity := float64(w.length) * float64(max(instances, 1))
	m.CPUUsage = min(float64(busy)/capacity, 1)
	return m
}

// Latencies returns the latencies currently in the window, in milliseconds.
func (w *Window) Latencies() []float64 {
	out := make([]float64, len(w.requests))
	for i, o := range w.requests {
		out[i] = float64(o.value) / float64(time.Millisecond)
	}
	return out
}

// Stats prunes the window and reports its contents.
func (w *Window) Stats(now time.Time, instances int) WindowStats {
	m := w.Snapshot(now, instances)
	s := WindowStats{
		LengthSeconds: w.length.Seconds(),
		Requests:      len(w.requests),
		BusySamples:   len(w.busy),
		Metrics:       m,
	}
	if len(w.requests) > 0 {
		latencies := w.Latencies()
		s.LatencyP50Ms, _ = stats.PercentileNearestRank(latencies, 50)
		s.LatencyP99Ms, _ = stats.PercentileNearestRank(latencies, 99)
	}
	return s
}
