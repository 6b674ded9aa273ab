package autoscale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixedSource returns the same metrics every time and remembers the
// instance count it was asked about.
type fixedSource struct {
	m         serve.Metrics
	instances []int
}

func (f *fixedSource) Snapshot(instances int) serve.Metrics {
	f.instances = append(f.instances, instances)
	return f.m
}

var (
	hot  = serve.Metrics{CPUUsage: 0.9, RequestRate: 150, AvgLatencyMs: 1200}
	cold = serve.Metrics{CPUUsage: 0.1, RequestRate: 1, AvgLatencyMs: 10}
	calm = serve.Metrics{CPUUsage: 0.6, RequestRate: 50, AvgLatencyMs: 500}
)

func newController(t *testing.T, minInstances, maxInstances int) *serve.ScaleController {
	t.Helper()
	c, err := serve.NewScaleController(serve.DefaultScalerConfig(minInstances, maxInstances))
	require.NoError(t, err)
	return c
}

func TestNewLoop_Validation(t *testing.T) {
	c := newController(t, 1, 3)
	_, err := NewLoop(c, &fixedSource{}, LogOrchestrator{}, 500*time.Millisecond)
	assert.ErrorIs(t, err, serve.ErrInvalidConfiguration)

	_, err = NewLoop(c, nil, LogOrchestrator{}, time.Second)
	assert.ErrorIs(t, err, serve.ErrInvalidConfiguration)
}

func TestTick_AppliesOnlyNonZeroDeltas(t *testing.T) {
	// GIVEN a controller at max=3 fed hot metrics
	src := &fixedSource{m: hot}
	orch := &RecordingOrchestrator{}
	tr := trace.New(trace.TraceLevelDecisions)
	l, err := NewLoop(newController(t, 1, 3), src, orch, time.Second, WithTrace(tr))
	require.NoError(t, err)

	// WHEN ticking past the bound
	for range 4 {
		_, err := l.Tick(context.Background())
		require.NoError(t, err)
	}

	// THEN only the two real moves reach the orchestrator, but every tick is traced
	assert.Equal(t, []Application{{Delta: 1, Instances: 2}, {Delta: 1, Instances: 3}}, orch.Calls())
	assert.Equal(t, []int{1, 2, 3, 3}, src.instances)
	require.Len(t, tr.Scales(), 4)
	assert.Equal(t, 0, tr.Scales()[3].Delta)
	assert.Equal(t, 3, l.State().Current)
}

func TestTick_HoldAndScaleDown(t *testing.T) {
	src := &fixedSource{m: calm}
	orch := &RecordingOrchestrator{}
	c, err := serve.NewScaleController(serve.ScalerConfig{
		MinInstances: 1, MaxInstances: 5, InitialInstances: 3,
		ScaleUpThreshold: 0.8, ScaleDownThreshold: 0.5,
		LatencyCeilingMs: 1000, LatencyFloorMs: 100,
		RateCeiling: 100, RateFloor: 10,
	})
	require.NoError(t, err)
	l, err := NewLoop(c, src, orch, time.Second)
	require.NoError(t, err)

	d, err := l.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, serve.Hold, d)
	assert.Empty(t, orch.Calls())

	src.m = cold
	d, err = l.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, serve.ScaleDown, d)
	assert.Equal(t, []Application{{Delta: -1, Instances: 2}}, orch.Calls())
}

func TestTick_PropagatesErrors(t *testing.T) {
	t.Run("orchestrator failure", func(t *testing.T) {
		orch := &RecordingOrchestrator{Err: errors.New("quota exceeded")}
		l, err := NewLoop(newController(t, 1, 3), &fixedSource{m: hot}, orch, time.Second)
		require.NoError(t, err)

		d, err := l.Tick(context.Background())
		assert.Equal(t, serve.ScaleUp, d)
		assert.ErrorContains(t, err, "quota exceeded")
	})
	t.Run("invalid metrics", func(t *testing.T) {
		orch := &RecordingOrchestrator{}
		l, err := NewLoop(newController(t, 1, 3), &fixedSource{m: serve.Metrics{CPUUsage: -1}}, orch, time.Second)
		require.NoError(t, err)

		_, err = l.Tick(context.Background())
		assert.ErrorIs(t, err, serve.ErrInvalidMetrics)
		assert.Empty(t, orch.Calls())
		assert.Equal(t, uint64(0), l.State().Decisions)
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	l, err := NewLoop(newController(t, 1, 3), &fixedSource{m: calm}, LogOrchestrator{}, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
