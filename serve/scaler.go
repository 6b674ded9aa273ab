package serve

import (
	"math"

	"github.com/sirupsen/logrus"
)

// Default scaling thresholds. The latency and request-rate values are the
// reference policy constants; only the CPU thresholds were ever tunable.
const (
	DefaultScaleUpThreshold   = 0.8
	DefaultScaleDownThreshold = 0.5
	DefaultTargetCPU          = 0.7
	DefaultLatencyCeilingMs   = 1000.0
	DefaultLatencyFloorMs     = 100.0
	DefaultRateCeiling        = 100.0
	DefaultRateFloor          = 10.0
)

// Decision is the instance-count change applied by one Decide call.
type Decision int

const (
	ScaleDown Decision = -1
	Hold      Decision = 0
	ScaleUp   Decision = 1
)

func (d Decision) String() string {
	switch d {
	case ScaleUp:
		return "up"
	case ScaleDown:
		return "down"
	default:
		return "hold"
	}
}

// Metrics is the snapshot a scale decision is made from.
type Metrics struct {
	CPUUsage     float64 `json:"cpu_usage" yaml:"cpu_usage"`           // [0, 1]
	RequestRate  float64 `json:"request_rate" yaml:"request_rate"`     // requests per second
	AvgLatencyMs float64 `json:"avg_latency_ms" yaml:"avg_latency_ms"` // milliseconds
}

type namedValue struct {
	name  string
	value float64
}

// Validate rejects NaN, negative values, and CPU usage above 1. An
// unbounded request rate or latency (+Inf) is valid and scales up.
func (m Metrics) Validate() error {
	for _, f := range []namedValue{
		{"cpu_usage", m.CPUUsage},
		{"request_rate", m.RequestRate},
		{"avg_latency_ms", m.AvgLatencyMs},
	} {
		if math.IsNaN(f.value) || f.value < 0 {
			return invalidMetrics("%s must be a non-negative number, got %v", f.name, f.value)
		}
	}
	if m.CPUUsage > 1 {
		return invalidMetrics("cpu_usage must be in [0, 1], got %v", m.CPUUsage)
	}
	return nil
}

// ScalerConfig holds ScaleController parameters. All thresholds are fixed
// after construction.
type ScalerConfig struct {
	MinInstances       int
	MaxInstances       int
	InitialInstances   int // 0 starts at MinInstances
	TargetCPU          float64
	ScaleUpThreshold   float64 // cpu above this scales up
	ScaleDownThreshold float64 // cpu below this (with low latency and rate) scales down
	LatencyCeilingMs   float64 // latency above this scales up
	LatencyFloorMs     float64 // latency must be below this to scale down
	RateCeiling        float64 // request rate above this scales up
	RateFloor          float64 // request rate must be below this to scale down
}

// DefaultScalerConfig returns the reference policy with bounds [min, max].
func DefaultScalerConfig(minInstances, maxInstances int) ScalerConfig {
	return ScalerConfig{
		MinInstances:       minInstances,
		MaxInstances:       maxInstances,
		TargetCPU:          DefaultTargetCPU,
		ScaleUpThreshold:   DefaultScaleUpThreshold,
		ScaleDownThreshold: DefaultScaleDownThreshold,
		LatencyCeilingMs:   DefaultLatencyCeilingMs,
		LatencyFloorMs:     DefaultLatencyFloorMs,
		RateCeiling:        DefaultRateCeiling,
		RateFloor:          DefaultRateFloor,
	}
}

// ScaleState is a read-only view of the controller.
type ScaleState struct {
	Current      int      `json:"current_instances"`
	Min          int      `json:"min_instances"`
	Max          int      `json:"max_instances"`
	LastDecision Decision `json:"last_decision"`
	Decisions    uint64   `json:"decisions"`
}

// ScaleController turns metrics snapshots into ±1 instance changes.
// Scale-up is evaluated first and wins whenever both rules match. There is
// no hysteresis beyond the [min, max] clamp, so metrics oscillating around
// a threshold produce oscillating decisions.
//
// ScaleController is not safe for concurrent use.
type ScaleController struct {
	cfg       ScalerConfig
	current   int
	last      Decision
	decisions uint64
}

// NewScaleController validates cfg and starts at InitialInstances (or
// MinInstances when unset).
func NewScaleController(cfg ScalerConfig) (*ScaleController, error) {
	if cfg.MinInstances < 0 {
		return nil, InvalidConfig("min_instances must be >= 0, got %d", cfg.MinInstances)
	}
	if cfg.MinInstances > cfg.MaxInstances {
		return nil, InvalidConfig("min_instances (%d) must be <= max_instances (%d)", cfg.MinInstances, cfg.MaxInstances)
	}
	for _, f := range []namedValue{
		{"target_cpu", cfg.TargetCPU},
		{"scale_up_threshold", cfg.ScaleUpThreshold},
		{"scale_down_threshold", cfg.ScaleDownThreshold},
		{"latency_ceiling_ms", cfg.LatencyCeilingMs},
		{"latency_floor_ms", cfg.LatencyFloorMs},
		{"rate_ceiling", cfg.RateCeiling},
		{"rate_floor", cfg.RateFloor},
	} {
		if math.IsNaN(f.value) || f.value < 0 {
			return nil, InvalidConfig("%s must be non-negative, got %v", f.name, f.value)
		}
	}
	current := cfg.InitialInstances
	if current == 0 {
		current = cfg.MinInstances
	}
	if current < cfg.MinInstances || current > cfg.MaxInstances {
		return nil, InvalidConfig("initial_instances %d outside [%d, %d]", current, cfg.MinInstances, cfg.MaxInstances)
	}
	return &ScaleController{cfg: cfg, current: current}, nil
}

// Decide evaluates m and applies at most one instance change. The returned
// Decision is the change actually applied: a rule that fires at a bound
// returns Hold. Invalid metrics leave the state untouched.
func (s *ScaleController) Decide(m Metrics) (Decision, error) {
	if err := m.Validate(); err != nil {
		return Hold, err
	}
	s.decisions++

	want := s.evaluate(m)
	next := min(max(s.current+int(want), s.cfg.MinInstances), s.cfg.MaxInstances)
	applied := Decision(next - s.current)

	switch {
	case applied == ScaleUp:
		logrus.Infof("Scaling up: %d -> %d (cpu=%.2f rate=%.1f latency=%.0fms)", s.current, next, m.CPUUsage, m.RequestRate, m.AvgLatencyMs)
	case applied == ScaleDown:
		logrus.Infof("Scaling down: %d -> %d (cpu=%.2f rate=%.1f latency=%.0fms)", s.current, next, m.CPUUsage, m.RequestRate, m.AvgLatencyMs)
	case want != Hold:
		logrus.Debugf("scale %s suppressed at bound (instances=%d)", want, s.current)
	}

	s.current = next
	s.last = applied
	return applied, nil
}

// evaluate returns the rule outcome before clamping.
func (s *ScaleController) evaluate(m Metrics) Decision {
	if m.CPUUsage > s.cfg.ScaleUpThreshold ||
		m.AvgLatencyMs > s.cfg.LatencyCeilingMs ||
		m.RequestRate > s.cfg.RateCeiling {
		return ScaleUp
	}
	if m.CPUUsage < s.cfg.ScaleDownThreshold &&
		m.AvgLatencyMs < s.cfg.LatencyFloorMs &&
		m.RequestRate < s.cfg.RateFloor {
		return ScaleDown
	}
	return Hold
}

// Current returns the instance count.
func (s *ScaleController) Current() int { return s.current }

// Config returns the controller's configuration.
func (s *ScaleController) Config() ScalerConfig { return s.cfg }

// State returns a snapshot of the controller.
func (s *ScaleController) State() ScaleState {
	return ScaleState{
		Current:      s.current,
		Min:          s.cfg.MinInstances,
		Max:          s.cfg.MaxInstances,
		LastDecision: s.last,
		Decisions:    s.decisions,
	}
}
