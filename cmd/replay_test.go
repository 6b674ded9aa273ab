package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/autoscale"
)

const sampleTrace = `interval: 30s
samples:
  - {cpu_usage: 0.9, request_rate: 150, avg_latency_ms: 1200}
  - {cpu_usage: 0.9, request_rate: 150, avg_latency_ms: 1200}
  - {cpu_usage: 0.6, request_rate: 50, avg_latency_ms: 500}
  - {cpu_usage: 0.1, request_rate: 1, avg_latency_ms: 10}
  - {cpu_usage: 0.1, request_rate: 1, avg_latency_ms: 10}
  - {cpu_usage: 0.1, request_rate: 1, avg_latency_ms: 10}
`

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplay_DecisionsAndSummary(t *testing.T) {
	// GIVEN a trace that runs hot, then calm, then cold
	mt, err := loadMetricsTrace(writeTrace(t, sampleTrace))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mt.Interval)

	// WHEN it is replayed against a [1, 3] controller
	report, err := replayMetrics(serve.DefaultScalerConfig(1, 3), mt)
	require.NoError(t, err)

	// THEN instances go 2, 3, 3, 2, 1, 1 and only real moves are applied
	var instances []int
	for _, s := range report.Steps {
		instances = append(instances, s.Instances)
	}
	assert.Equal(t, []int{2, 3, 3, 2, 1, 1}, instances)
	assert.Equal(t, []autoscale.Application{
		{Delta: 1, Instances: 2}, {Delta: 1, Instances: 3},
		{Delta: -1, Instances: 2}, {Delta: -1, Instances: 1},
	}, report.Applied)
	assert.Equal(t, 2, report.Summary.ScaleUps)
	assert.Equal(t, 2, report.Summary.ScaleDowns)
	assert.Equal(t, 2, report.Summary.Holds)
	assert.Equal(t, 1, report.Summary.FinalInstances)
	assert.Equal(t, 1200.0, report.Latency.Max)
	assert.Equal(t, 6, report.Rate.Count)

	var buf bytes.Buffer
	printReplayReport(&buf, report)
	assert.Contains(t, buf.String(), "=== Scale Decisions ===")
	assert.Contains(t, buf.String(), "=== Trace Summary ===")
}

func TestReplay_InvalidSampleAborts(t *testing.T) {
	mt, err := loadMetricsTrace(writeTrace(t, "samples:\n  - {cpu_usage: 1.5}\n"))
	require.NoError(t, err)
	_, err = replayMetrics(serve.DefaultScalerConfig(1, 3), mt)
	assert.ErrorIs(t, err, serve.ErrInvalidMetrics)
	assert.Contains(t, err.Error(), "sample 0")
}

func TestLoadMetricsTrace_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "samples:\n  - {cpu: 0.5}\n"},
		{"no samples", "interval: 10s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMetricsTrace(writeTrace(t, tt.content))
			assert.Error(t, err)
		})
	}
}
