package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/inference-sim/inference-serve/serve"
)

// Per-field overrides. They apply only when the flag was set explicitly,
// so a value from --config is never clobbered by a flag default.
var (
	addr           string
	requestTimeout time.Duration
	cacheCapacity  int
	eviction       string
	batchSize      int
	maxWait        time.Duration
	flushInterval  time.Duration
	backendName    string
	backendURL     string
	backendLatency time.Duration
	backendTimeout time.Duration
	minInstances   int
	maxInstances   int
	scaleInterval  time.Duration
	traceLevel     string
)

func registerConfigFlags(cmd *cobra.Command) {
	d := serve.DefaultConfig()
	cmd.Flags().StringVar(&addr, "addr", d.Server.Addr, "HTTP listen address")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", d.Server.RequestTimeout, "Deadline for each /predict request (0 = none)")
	cmd.Flags().IntVar(&cacheCapacity, "cache-capacity", d.Cache.Capacity, "Maximum number of cached predictions")
	cmd.Flags().StringVar(&eviction, "eviction", string(d.Cache.Eviction), "Cache eviction policy (fifo, lru)")
	cmd.Flags().IntVar(&batchSize, "batch-size", d.Batch.Size, "Items per backend batch")
	cmd.Flags().DurationVar(&maxWait, "max-wait", d.Batch.MaxWait, "Maximum time the first item waits for its batch")
	cmd.Flags().DurationVar(&flushInterval, "flush-interval", 0, "Stale-batch check period (default: max-wait)")
	cmd.Flags().StringVar(&backendName, "backend", d.Backend.Name, "Compute backend (placeholder, fixed-latency, remote)")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "Scorer URL for the remote backend")
	cmd.Flags().DurationVar(&backendLatency, "backend-latency", 0, "Per-batch latency for the fixed-latency backend")
	cmd.Flags().DurationVar(&backendTimeout, "backend-timeout", 0, "Per-batch backend deadline (0 = none)")
	cmd.Flags().IntVar(&minInstances, "min-instances", d.Scaler.MinInstances, "Minimum instance count")
	cmd.Flags().IntVar(&maxInstances, "max-instances", d.Scaler.MaxInstances, "Maximum instance count")
	cmd.Flags().DurationVar(&scaleInterval, "scale-interval", d.Scaler.Interval, "Autoscale decision period")
	cmd.Flags().StringVar(&traceLevel, "trace-level", d.Trace.Level, "Decision trace level (none, decisions)")
}

// resolveConfig loads --config (or the defaults), applies explicitly set
// flags, and validates the result.
func resolveConfig(cmd *cobra.Command) (*serve.Config, error) {
	cfg := serve.DefaultConfig()
	if configPath != "" {
		loaded, err := serve.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.Addr = addr
	}
	if changed("request-timeout") {
		cfg.Server.RequestTimeout = requestTimeout
	}
	if changed("cache-capacity") {
		cfg.Cache.Capacity = cacheCapacity
	}
	if changed("eviction") {
		cfg.Cache.Eviction = serve.EvictionPolicy(eviction)
	}
	if changed("batch-size") {
		cfg.Batch.Size = batchSize
	}
	if changed("max-wait") {
		cfg.Batch.MaxWait = maxWait
	}
	if changed("flush-interval") {
		cfg.Batch.FlushInterval = flushInterval
	}
	if changed("backend") {
		cfg.Backend.Name = backendName
	}
	if changed("backend-url") {
		cfg.Backend.URL = backendURL
	}
	if changed("backend-latency") {
		cfg.Backend.Latency = backendLatency
	}
	if changed("backend-timeout") {
		cfg.Backend.Timeout = backendTimeout
	}
	if changed("min-instances") {
		cfg.Scaler.MinInstances = minInstances
	}
	if changed("max-instances") {
		cfg.Scaler.MaxInstances = maxInstances
	}
	if changed("scale-interval") {
		cfg.Scaler.Interval = scaleInterval
	}
	if changed("trace-level") {
		cfg.Trace.Level = traceLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
