// Package autoscale drives a ScaleController on a fixed schedule and hands
// its non-zero decisions to an Orchestrator.
package autoscale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/promstats"
	"github.com/inference-sim/inference-serve/serve/trace"
)

// MetricsSource reduces recent traffic to a Metrics snapshot for the
// given instance count.
type MetricsSource interface {
	Snapshot(instances int) serve.Metrics
}

// Orchestrator applies a scale decision to real capacity.
type Orchestrator interface {
	Apply(ctx context.Context, delta, instances int) error
}

// LogOrchestrator only logs the decisions it is given.
type LogOrchestrator struct{}

func (LogOrchestrator) Apply(_ context.Context, delta, instances int) error {
	logrus.Infof("autoscale: apply delta %+d, target %d instances", delta, instances)
	return nil
}

// Application is one call recorded by RecordingOrchestrator.
type Application struct {
	Delta     int
	Instances int
}

// RecordingOrchestrator keeps every applied decision in memory.
type RecordingOrchestrator struct {
	mu    sync.Mutex
	calls []Application
	Err   error // returned from every Apply when set
}

func (r *RecordingOrchestrator) Apply(_ context.Context, delta, instances int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Application{Delta: delta, Instances: instances})
	return r.Err
}

// Calls returns a copy of the recorded applications.
func (r *RecordingOrchestrator) Calls() []Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Application, len(r.calls))
	copy(out, r.calls)
	return out
}

// Option configures a Loop.
type Option func(*Loop)

// WithTrace records every decision into t.
func WithTrace(t *trace.Trace) Option {
	return func(l *Loop) { l.trace = t }
}

// WithCollectors records decisions into Prometheus collectors.
func WithCollectors(c *promstats.Collectors) Option {
	return func(l *Loop) { l.metrics = c }
}

// WithClock replaces time.Now for trace timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop owns a ScaleController and serializes every access to it.
type Loop struct {
	mu         sync.Mutex
	controller *serve.ScaleController
	source     MetricsSource
	orch       Orchestrator
	interval   time.Duration

	trace   *trace.Trace
	metrics *promstats.Collectors
	now     func() time.Time
}

// NewLoop creates a Loop that decides every interval.
func NewLoop(controller *serve.ScaleController, source MetricsSource, orch Orchestrator, interval time.Duration, opts ...Option) (*Loop, error) {
	if controller == nil || source == nil || orch == nil {
		return nil, serve.InvalidConfig("autoscale loop requires a controller, a metrics source and an orchestrator")
	}
	if interval < time.Second {
		return nil, serve.InvalidConfig("autoscale interval must be >= 1s, got %v", interval)
	}
	l := &Loop{
		controller: controller,
		source:     source,
		orch:       orch,
		interval:   interval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Tick takes one snapshot, decides, and applies a non-zero decision.
func (l *Loop) Tick(ctx context.Context) (serve.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.source.Snapshot(l.controller.Current())
	decision, err := l.controller.Decide(m)
	if err != nil {
		return serve.Hold, fmt.Errorf("autoscale tick: %w", err)
	}
	instances := l.controller.Current()

	l.metrics.ScaleDecision(decision.String(), instances)
	l.trace.RecordScale(trace.ScaleRecord{
		Time:         l.now(),
		CPUUsage:     m.CPUUsage,
		RequestRate:  m.RequestRate,
		AvgLatencyMs: m.AvgLatencyMs,
		Delta:        int(decision),
		Instances:    instances,
	})

	if decision == serve.Hold {
		return decision, nil
	}
	if err := l.orch.Apply(ctx, int(decision), instances); err != nil {
		return decision, fmt.Errorf("applying scale decision %s: %w", decision, err)
	}
	return decision, nil
}

// Run ticks on an "@every interval" cron schedule until ctx is done. A
// tick still running when the next is due is skipped.
func (l *Loop) Run(ctx context.Context) error {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	schedule := "@every " + l.interval.String()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := l.Tick(ctx); err != nil {
			logrus.Warnf("%v", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling autoscale %q: %w", schedule, err)
	}

	logrus.Infof("autoscale: deciding %s", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logrus.Infof("autoscale: stopped at %d instances", l.State().Current)
	return nil
}

// State returns the controller's current state.
func (l *Loop) State() serve.ScaleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.controller.State()
}
