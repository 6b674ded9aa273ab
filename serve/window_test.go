package serve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow_NonPositiveLength(t *testing.T) {
	_, err := NewWindow(0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestWindow_EmptySnapshotIsZero(t *testing.T) {
	w, err := NewWindow(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, w.Snapshot(time.Now(), 1))
}

func TestWindow_Snapshot(t *testing.T) {
	w, err := NewWindow(10 * time.Second)
	require.NoError(t, err)
	t0 := time.Unix(1_700_000_000, 0)

	w.ObserveRequest(t0.Add(1*time.Second), 100*time.Millisecond)
	w.ObserveRequest(t0.Add(2*time.Second), 300*time.Millisecond)
	w.ObserveBusy(t0.Add(2*time.Second), 2*time.Second)
	w.ObserveBusy(t0.Add(3*time.Second), 3*time.Second)

	m := w.Snapshot(t0.Add(5*time.Second), 1)
	assert.InDelta(t, 0.2, m.RequestRate, 1e-12)
	assert.InDelta(t, 200.0, m.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.5, m.CPUUsage, 1e-12)

	// The same busy time spread over two instances halves utilization.
	m = w.Snapshot(t0.Add(5*time.Second), 2)
	assert.InDelta(t, 0.25, m.CPUUsage, 1e-12)
}

func TestWindow_PrunesOldObservations(t *testing.T) {
	w, err := NewWindow(10 * time.Second)
	require.NoError(t, err)
	t0 := time.Unix(1_700_000_000, 0)

	w.ObserveRequest(t0, 900*time.Millisecond)
	w.ObserveRequest(t0.Add(8*time.Second), 100*time.Millisecond)
	w.ObserveBusy(t0, 5*time.Second)

	m := w.Snapshot(t0.Add(10*time.Second), 1)
	assert.InDelta(t, 0.1, m.RequestRate, 1e-12)
	assert.InDelta(t, 100.0, m.AvgLatencyMs, 1e-9)
	assert.Equal(t, 0.0, m.CPUUsage)
	assert.Equal(t, []float64{100}, w.Latencies())
}

func TestWindow_CPUClampedToOne(t *testing.T) {
	w, err := NewWindow(time.Second)
	require.NoError(t, err)
	now := time.Now()
	w.ObserveBusy(now, 5*time.Second)

	assert.Equal(t, 1.0, w.Snapshot(now, 1).CPUUsage)
}

func TestWindow_ZeroInstancesTreatedAsOne(t *testing.T) {
	w, err := NewWindow(time.Second)
	require.NoError(t, err)
	now := time.Now()
	w.ObserveBusy(now, 500*time.Millisecond)

	assert.InDelta(t, 0.5, w.Snapshot(now, 0).CPUUsage, 1e-12)
}

func TestWindow_SnapshotIsValidScaleInput(t *testing.T) {
	w, err := NewWindow(time.Second)
	require.NoError(t, err)
	now := time.Now()
	for i := 0; i < 50; i++ {
		w.ObserveRequest(now, time.Duration(i)*time.Millisecond)
		w.ObserveBusy(now, 100*time.Millisecond)
	}
	assert.NoError(t, w.Snapshot(now, 3).Validate())
}

func TestWindow_Stats(t *testing.T) {
	w, err := NewWindow(2 * time.Second)
	require.NoError(t, err)
	now := time.Now()
	w.ObserveRequest(now, time.Millisecond)
	w.ObserveBusy(now, time.Millisecond)

	stats := w.Stats(now, 1)
	assert.Equal(t, 2.0, stats.LengthSeconds)
	assert.Equal(t, 1, stats.Requests)
	assert.Equal(t, 1, stats.BusySamples)
	assert.InDelta(t, 0.5, stats.Metrics.RequestRate, 1e-12)
	assert.Equal(t, 1.0, stats.LatencyP50Ms)
	assert.Equal(t, 1.0, stats.LatencyP99Ms)
}

func TestWindow_StatsLatencyPercentiles(t *testing.T) {
	w, err := NewWindow(time.Minute)
	require.NoError(t, err)
	now := time.Now()
	for i := 1; i <= 100; i++ {
		w.ObserveRequest(now, time.Duration(i)*time.Millisecond)
	}

	stats := w.Stats(now, 1)
	assert.Equal(t, 50.0, stats.LatencyP50Ms)
	assert.Equal(t, 99.0, stats.LatencyP99Ms)

	empty, err := NewWindow(time.Minute)
	require.NoError(t, err)
	assert.Zero(t, empty.Stats(now, 1).LatencyP99Ms)
}
