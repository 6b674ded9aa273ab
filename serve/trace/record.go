// Package trace provides decision-trace recording for the serving core.
// This package has no dependencies on serve/; it stores pure data types.
package trace

import "time"

// FlushRecord captures a single batch release and its backend outcome.
type FlushRecord struct {
	BatchID  uint64
	Time     time.Time
	Size     int
	Reason   string        // "size", "timeout", "stale" or "drain"
	Wait     time.Duration // first item's time in the batch
	Duration time.Duration // backend call time
	Err      string        // empty on success
}

// ScaleRecord captures a single scale decision and the metrics it saw.
type ScaleRecord struct {
	Time         time.Time
	CPUUsage     float64
	RequestRate  float64
	AvgLatencyMs float64
	Delta        int // applied change: -1, 0 or +1
	Instances    int // instance count after the decision
}
