package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/inference-serve/serve"
)

// PredictClient sends requests to a running prediction server.
type PredictClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPredictClient creates a client for the server at baseURL.
func NewPredictClient(baseURL string, timeout time.Duration) *PredictClient {
	return &PredictClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ProbeRecord captures one request-response cycle.
type ProbeRecord struct {
	RequestID    int
	Status       string // "ok", "error"
	StatusCode   int
	ErrorMessage string
	Cached       bool
	LatencyUs    int64   // client-observed round trip
	ServerMs     float64 // server-reported latency_ms
}

// Send posts one feature mapping to /predict and records timing. Transport
// and server errors are recorded on the returned record, not returned.
func (c *PredictClient) Send(ctx context.Context, id int, features serve.Features) *ProbeRecord {
	record := &ProbeRecord{RequestID: id, Status: "ok"}

	body, err := json.Marshal(map[string]any{"features": features})
	if err != nil {
		record.Status = "error"
		record.ErrorMessage = fmt.Sprintf("marshal error: %v", err)
		return record
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		record.Status = "error"
		record.ErrorMessage = fmt.Sprintf("request creation error: %v", err)
		return record
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		record.Status = "error"
		record.ErrorMessage = fmt.Sprintf("HTTP error: %v", err)
		return record
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	record.LatencyUs = time.Since(start).Microseconds()
	record.StatusCode = resp.StatusCode
	if err != nil {
		record.Status = "error"
		record.ErrorMessage = fmt.Sprintf("read error: %v", err)
		return record
	}
	if resp.StatusCode != http.StatusOK {
		record.Status = "error"
		record.ErrorMessage = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return record
	}

	var result struct {
		Cached    bool    `json:"cached"`
		LatencyMs float64 `json:"latency_ms"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		record.Status = "error"
		record.ErrorMessage = fmt.Sprintf("JSON parse error: %v", err)
		return record
	}
	record.Cached = result.Cached
	record.ServerMs = result.LatencyMs
	return record
}

// Recorder collects probe records (goroutine-safe).
type Recorder struct {
	mu      sync.Mutex
	records []ProbeRecord
}

// Record appends one record.
func (r *Recorder) Record(rec *ProbeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
}

// Records returns a copy of all records.
func (r *Recorder) Records() []ProbeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProbeRecord, len(r.records))
	copy(out, r.records)
	return out
}

// ProbeReport summarizes a probe run.
type ProbeReport struct {
	Requests  int          `json:"requests"`
	Errors    int          `json:"errors"`
	CacheHits int          `json:"cache_hits"`
	HitRate   float64      `json:"hit_rate"`
	LatencyMs Distribution `json:"latency_ms"`
}

// Summarize reduces the recorded probes to a report.
func (r *Recorder) Summarize() ProbeReport {
	records := r.Records()
	rep := ProbeReport{Requests: len(records)}
	latencies := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.Status != "ok" {
			rep.Errors++
			continue
		}
		if rec.Cached {
			rep.CacheHits++
		}
		latencies = append(latencies, float64(rec.LatencyUs)/1000)
	}
	if ok := rep.Requests - rep.Errors; ok > 0 {
		rep.HitRate = float64(rep.CacheHits) / float64(ok)
	}
	rep.LatencyMs = distribution(latencies)
	return rep
}

// ProbeOptions controls a probe run.
type ProbeOptions struct {
	Requests    int
	Concurrency int
	Distinct    int // number of distinct feature mappings cycled through
	Seed        uint64
}

// runProbe sends opts.Requests requests with at most opts.Concurrency in
// flight. Feature mappings are drawn from opts.Distinct variants so the
// server's cache sees repeats.
func runProbe(ctx context.Context, client *PredictClient, opts ProbeOptions) ProbeReport {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	recorder := &Recorder{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i := range opts.Requests {
		variant := rng.IntN(max(opts.Distinct, 1))
		g.Go(func() error {
			recorder.Record(client.Send(gctx, i, serve.Features{"variant": variant, "probe": true}))
			return nil
		})
	}
	_ = g.Wait()
	return recorder.Summarize()
}

var (
	probeURL         string
	probeOpts        ProbeOptions
	probeHTTPTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send synthetic /predict traffic to a running server and report latency",
	Run: func(cmd *cobra.Command, args []string) {
		if probeOpts.Requests <= 0 {
			logrus.Fatalf("--requests must be > 0")
		}
		client := NewPredictClient(probeURL, probeHTTPTimeout)
		logrus.Infof("Probing %s: %d requests, concurrency %d, %d distinct inputs",
			probeURL, probeOpts.Requests, probeOpts.Concurrency, probeOpts.Distinct)

		rep := runProbe(cmd.Context(), client, probeOpts)
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			logrus.Fatalf("encoding report: %v", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "=== Probe Report ===")
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		if rep.Errors > 0 {
			logrus.Warnf("%d of %d requests failed", rep.Errors, rep.Requests)
		}
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", "http://localhost:8000", "Base URL of the prediction server")
	probeCmd.Flags().IntVar(&probeOpts.Requests, "requests", 100, "Number of requests to send")
	probeCmd.Flags().IntVar(&probeOpts.Concurrency, "concurrency", 8, "Maximum requests in flight")
	probeCmd.Flags().IntVar(&probeOpts.Distinct, "distinct", 20, "Number of distinct feature mappings")
	probeCmd.Flags().Uint64Var(&probeOpts.Seed, "seed", 42, "Seed for feature selection")
	probeCmd.Flags().DurationVar(&probeHTTPTimeout, "timeout", 30*time.Second, "Per-request HTTP timeout")
	rootCmd.AddCommand(probeCmd)
}
