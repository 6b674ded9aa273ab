package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/autoscale"
	"github.com/inference-sim/inference-serve/serve/backend"
	"github.com/inference-sim/inference-serve/serve/dispatch"
	"github.com/inference-sim/inference-serve/serve/promstats"
	"github.com/inference-sim/inference-serve/serve/trace"
	"github.com/inference-sim/inference-serve/server"
)

// version is overridden at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP prediction server with batching and autoscaling",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runServe(ctx, cfg); err != nil {
			logrus.Fatalf("serve: %v", err)
		}
		logrus.Info("Server stopped.")
	},
}

// runServe wires every component from cfg and runs until ctx is done.
// The stale flusher outlives the HTTP server so that in-flight requests
// are still delivered during shutdown.
func runServe(ctx context.Context, cfg *serve.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := promstats.New(reg)
	tr := trace.New(trace.TraceLevel(cfg.Trace.Level))

	b, err := backend.New(cfg.Backend)
	if err != nil {
		return err
	}
	d, err := dispatch.New(*cfg, b, dispatch.WithCollectors(metrics), dispatch.WithTrace(tr))
	if err != nil {
		return err
	}
	ctrl, err := serve.NewScaleController(cfg.Scaler.ScalerConfig())
	if err != nil {
		return err
	}
	loop, err := autoscale.NewLoop(ctrl, d, autoscale.LogOrchestrator{}, cfg.Scaler.Interval,
		autoscale.WithCollectors(metrics), autoscale.WithTrace(tr))
	if err != nil {
		return err
	}
	srv, err := server.New(server.Deps{
		Predictor:      d,
		Scaler:         loop,
		Gatherer:       reg,
		Version:        version,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		return err
	}

	logrus.Infof("Starting server on %s: cache=%d/%s batch=%d/%v backend=%s instances=[%d,%d]",
		cfg.Server.Addr, cfg.Cache.Capacity, cfg.Cache.Eviction, cfg.Batch.Size, cfg.Batch.MaxWait,
		cfg.Backend.Name, cfg.Scaler.MinInstances, cfg.Scaler.MaxInstances)

	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushDone := make(chan error, 1)
	go func() { flushDone <- d.Run(flushCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr) })
	g.Go(func() error { return loop.Run(gctx) })
	err = g.Wait()

	stopFlush()
	err = multierr.Append(err, <-flushDone)

	if tr.Level == trace.TraceLevelDecisions {
		printTraceSummary(os.Stdout, trace.Summarize(tr))
	}
	return err
}

func init() {
	registerConfigFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
