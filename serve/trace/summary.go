package trace

import "time"

// TraceSummary aggregates statistics from a Trace.
type TraceSummary struct {
	TotalFlushes    int
	FailedFlushes   int
	ItemsFlushed    int
	MeanBatchSize   float64
	MaxWait         time.Duration
	FlushesByReason map[string]int

	TotalDecisions int
	ScaleUps       int
	ScaleDowns     int
	Holds          int
	FinalInstances int // 0 when no decision was recorded
}

// Summarize computes aggregate statistics from a Trace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(t *Trace) *TraceSummary {
	summary := &TraceSummary{
		FlushesByReason: make(map[string]int),
	}
	if t == nil {
		return summary
	}

	flushes := t.Flushes()
	summary.TotalFlushes = len(flushes)
	for _, f := range flushes {
		summary.FlushesByReason[f.Reason]++
		summary.ItemsFlushed += f.Size
		if f.Err != "" {
			summary.FailedFlushes++
		}
		if f.Wait > summary.MaxWait {
			summary.MaxWait = f.Wait
		}
	}
	if len(flushes) > 0 {
		summary.MeanBatchSize = float64(summary.ItemsFlushed) / float64(len(flushes))
	}

	scales := t.Scales()
	summary.TotalDecisions = len(scales)
	for _, s := range scales {
		switch {
		case s.Delta > 0:
			summary.ScaleUps++
		case s.Delta < 0:
			summary.ScaleDowns++
		default:
			summary.Holds++
		}
	}
	if len(scales) > 0 {
		summary.FinalInstances = scales[len(scales)-1].Instances
	}

	return summary
}
