package cmd

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/montanaflynn/stats"

	"github.com/inference-sim/inference-serve/serve/trace"
)

// printTraceSummary writes the trace summary as indented JSON under a
// header line.
func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(w, "trace summary unavailable: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(w, "=== Trace Summary ===")
	_, _ = fmt.Fprintln(w, string(data))
}

// Distribution summarizes a sample of float values.
type Distribution struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// distribution computes summary statistics; an empty sample yields zeros.
func distribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	d := Distribution{Count: len(values)}
	d.Mean, _ = stats.Mean(values)
	d.Min, _ = stats.Min(values)
	d.Max, _ = stats.Max(values)
	d.P50, _ = stats.PercentileNearestRank(values, 50)
	d.P90, _ = stats.PercentileNearestRank(values, 90)
	d.P99, _ = stats.PercentileNearestRank(values, 99)
	return d
}
