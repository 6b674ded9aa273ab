package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/autoscale"
	"github.com/inference-sim/inference-serve/serve/trace"
)

var metricsTracePath string

// MetricsTrace is a recorded sequence of metrics snapshots.
type MetricsTrace struct {
	Interval time.Duration   `yaml:"interval"` // spacing between samples; default 15s
	Samples  []serve.Metrics `yaml:"samples"`
}

// ReplayStep is the outcome of one replayed sample.
type ReplayStep struct {
	Index     int            `json:"index"`
	Metrics   serve.Metrics  `json:"metrics"`
	Decision  serve.Decision `json:"decision"`
	Instances int            `json:"instances"`
}

// ReplayReport is everything replay prints.
type ReplayReport struct {
	Steps   []ReplayStep
	Applied []autoscale.Application
	Summary *trace.TraceSummary
	Latency Distribution
	Rate    Distribution
}

// loadMetricsTrace parses a metrics trace with strict field checking.
func loadMetricsTrace(path string) (*MetricsTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metrics trace: %w", err)
	}
	mt := MetricsTrace{Interval: 15 * time.Second}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&mt); err != nil {
		return nil, fmt.Errorf("parsing metrics trace: %w", err)
	}
	if len(mt.Samples) == 0 {
		return nil, fmt.Errorf("metrics trace %s has no samples", path)
	}
	return &mt, nil
}

// sequenceSource hands out recorded samples in order.
type sequenceSource struct {
	samples []serve.Metrics
	next    int
}

func (s *sequenceSource) Snapshot(int) serve.Metrics {
	m := s.samples[s.next]
	s.next++
	return m
}

// replayMetrics feeds every sample through an autoscale loop driven by
// explicit ticks. The first invalid sample aborts the replay.
func replayMetrics(cfg serve.ScalerConfig, mt *MetricsTrace) (*ReplayReport, error) {
	ctrl, err := serve.NewScaleController(cfg)
	if err != nil {
		return nil, err
	}
	interval := max(mt.Interval, time.Second)
	base := time.Unix(0, 0).UTC()
	tick := 0
	clock := func() time.Time { return base.Add(time.Duration(tick) * interval) }

	tr := trace.New(trace.TraceLevelDecisions)
	orch := &autoscale.RecordingOrchestrator{}
	src := &sequenceSource{samples: mt.Samples}
	loop, err := autoscale.NewLoop(ctrl, src, orch, interval, autoscale.WithTrace(tr), autoscale.WithClock(clock))
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{}
	latencies := make([]float64, 0, len(mt.Samples))
	rates := make([]float64, 0, len(mt.Samples))
	for i, m := range mt.Samples {
		tick = i
		d, err := loop.Tick(context.Background())
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		report.Steps = append(report.Steps, ReplayStep{Index: i, Metrics: m, Decision: d, Instances: loop.State().Current})
		latencies = append(latencies, m.AvgLatencyMs)
		rates = append(rates, m.RequestRate)
	}
	report.Applied = orch.Calls()
	report.Summary = trace.Summarize(tr)
	report.Latency = distribution(latencies)
	report.Rate = distribution(rates)
	return report, nil
}

func printReplayReport(w io.Writer, r *ReplayReport) {
	_, _ = fmt.Fprintln(w, "=== Scale Decisions ===")
	for _, s := range r.Steps {
		_, _ = fmt.Fprintf(w, "%4d  cpu=%.2f rate=%8.1f latency=%8.1fms  %-4s -> %d\n",
			s.Index, s.Metrics.CPUUsage, s.Metrics.RequestRate, s.Metrics.AvgLatencyMs, s.Decision, s.Instances)
	}
	_, _ = fmt.Fprintf(w, "latency_ms: mean=%.1f p50=%.1f p90=%.1f p99=%.1f max=%.1f\n",
		r.Latency.Mean, r.Latency.P50, r.Latency.P90, r.Latency.P99, r.Latency.Max)
	_, _ = fmt.Fprintf(w, "request_rate: mean=%.1f p50=%.1f p90=%.1f p99=%.1f max=%.1f\n",
		r.Rate.Mean, r.Rate.P50, r.Rate.P90, r.Rate.P99, r.Rate.Max)
	printTraceSummary(w, r.Summary)
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded metrics trace through the scale controller",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		mt, err := loadMetricsTrace(metricsTracePath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report, err := replayMetrics(cfg.Scaler.ScalerConfig(), mt)
		if err != nil {
			logrus.Fatalf("replay: %v", err)
		}
		printReplayReport(cmd.OutOrStdout(), report)
		logrus.Infof("Replay complete: %d samples, %d applied decisions", len(report.Steps), len(report.Applied))
	},
}

func init() {
	replayCmd.Flags().StringVar(&metricsTracePath, "metrics", "", "Path to a YAML metrics trace (interval + samples)")
	_ = replayCmd.MarkFlagRequired("metrics")
	registerConfigFlags(replayCmd)
	rootCmd.AddCommand(replayCmd)
}
