// Package dispatch puts the serving core behind a concurrent Predict call.
//
// A Dispatcher owns one mutex that serializes every touch of the cache,
// the batcher and the metrics window. Backend calls never run under the
// lock. A miss is admitted to the batcher with its own buffered result
// channel; when an admission (or the stale flusher) releases a batch, the
// batch is scored on a tracked goroutine and each waiter receives exactly
// one outcome.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/promstats"
	"github.com/inference-sim/inference-serve/serve/trace"
)

// Result is the answer to one Predict call.
type Result struct {
	RequestID   string
	Prediction  serve.Prediction
	Cached      bool
	Fingerprint serve.Fingerprint
	Latency     time.Duration
}

// Stats is the combined snapshot served on /stats.
type Stats struct {
	Cache   serve.CacheStats   `json:"cache"`
	Batcher serve.BatcherStats `json:"batcher"`
	Window  serve.WindowStats  `json:"window"`
}

type outcome struct {
	pred serve.Prediction
	err  error
}

// item is one pending miss inside the batcher.
type item struct {
	fp       serve.Fingerprint
	features serve.Features
	out      chan outcome // capacity 1; written exactly once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now for the batcher and the window.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithCollectors records Prometheus metrics into c.
func WithCollectors(c *promstats.Collectors) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithTrace records every batch release into t.
func WithTrace(t *trace.Trace) Option {
	return func(d *Dispatcher) { d.trace = t }
}

// Dispatcher serves predictions through the cache and the batcher.
type Dispatcher struct {
	mu      sync.Mutex
	cache   *serve.BoundedCache[serve.Prediction]
	batcher *serve.Batcher[*item]
	window  *serve.Window

	backend    serve.Backend
	now        func() time.Time
	metrics    *promstats.Collectors
	trace      *trace.Trace
	flushEvery time.Duration

	inflight sync.WaitGroup
}

// New builds a Dispatcher from cfg. cfg is expected to be validated; the
// component constructors still reject out-of-range values.
func New(cfg serve.Config, backend serve.Backend, opts ...Option) (*Dispatcher, error) {
	if backend == nil {
		return nil, serve.InvalidConfig("dispatcher requires a backend")
	}
	d := &Dispatcher{
		backend:    backend,
		now:        time.Now,
		flushEvery: cfg.Batch.StaleCheckInterval(),
	}
	for _, opt := range opts {
		opt(d)
	}

	var err error
	d.cache, err = serve.NewBoundedCache[serve.Prediction](cfg.Cache.Capacity,
		serve.WithEvictionPolicy[serve.Prediction](cfg.Cache.Eviction),
		serve.WithOnEvict(func(serve.Fingerprint, serve.Prediction) { d.metrics.CacheEviction() }),
	)
	if err != nil {
		return nil, err
	}
	d.batcher, err = serve.NewBatcher[*item](cfg.Batch.Size, cfg.Batch.MaxWait, serve.WithClock(d.now))
	if err != nil {
		return nil, err
	}
	windowLength := cfg.Scaler.Window
	if windowLength == 0 {
		windowLength = serve.DefaultWindowLength
	}
	d.window, err = serve.NewWindow(windowLength)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Predict returns the prediction for features, from the cache when
// possible. On a miss it blocks until the item's batch has been scored or
// ctx is done. A caller that gives up early does not remove its item; the
// batch is still scored and the result still cached.
func (d *Dispatcher) Predict(ctx context.Context, features serve.Features) (Result, error) {
	start := d.now()
	fp, err := serve.ComputeFingerprint(features)
	if err != nil {
		d.metrics.DegenerateInput()
		return Result{}, err
	}
	res := Result{RequestID: uuid.NewString(), Fingerprint: fp}

	d.mu.Lock()
	if pred, ok := d.cache.Get(fp); ok {
		at := d.now()
		d.window.ObserveRequest(at, at.Sub(start))
		d.mu.Unlock()

		d.metrics.CacheLookup(true)
		d.metrics.Request("hit", at.Sub(start))
		logrus.Debugf("dispatch: cache hit %s", fp)
		res.Prediction, res.Cached, res.Latency = pred, true, at.Sub(start)
		return res, nil
	}
	it := &item{fp: fp, features: features, out: make(chan outcome, 1)}
	batch, ready := d.batcher.Admit(it)
	d.mu.Unlock()
	d.metrics.CacheLookup(false)

	if ready {
		d.launch(batch)
	}

	select {
	case o := <-it.out:
		if o.err != nil {
			d.metrics.Request("error", d.now().Sub(start))
			return Result{}, o.err
		}
		d.mu.Lock()
		at := d.now()
		d.window.ObserveRequest(at, at.Sub(start))
		d.mu.Unlock()

		d.metrics.Request("miss", at.Sub(start))
		res.Prediction, res.Latency = o.pred, at.Sub(start)
		return res, nil
	case <-ctx.Done():
		d.metrics.Request("error", d.now().Sub(start))
		return Result{}, fmt.Errorf("waiting for batch: %w", ctx.Err())
	}
}

// Run calls FlushIfStale every stale-check interval until ctx is done,
// then drains whatever is still pending. It returns once every batch it
// or Predict released has been delivered.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.flushEvery)
	defer ticker.Stop()
	logrus.Infof("dispatch: stale flusher started (every %v)", d.flushEvery)
	for {
		select {
		case <-ctx.Done():
			err := d.Close()
			logrus.Infof("dispatch: stale flusher stopped")
			return err
		case <-ticker.C:
			d.flushStale()
		}
	}
}

func (d *Dispatcher) flushStale() {
	d.mu.Lock()
	batch, ok := d.batcher.FlushIfStale(d.now())
	d.mu.Unlock()
	if ok {
		d.launch(batch)
	}
}

// Close drains every pending item through the backend and waits for all
// in-flight batches. Failures of the drained batches are combined into the
// returned error.
func (d *Dispatcher) Close() error {
	var errs error
	for {
		d.mu.Lock()
		batch, ok := d.batcher.Flush()
		d.mu.Unlock()
		if !ok {
			break
		}
		errs = multierr.Append(errs, d.execute(batch))
	}
	d.inflight.Wait()
	return errs
}

// Snapshot reduces the metrics window for the scale controller.
func (d *Dispatcher) Snapshot(instances int) serve.Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window.Snapshot(d.now(), instances)
}

// Stats returns the cache, batcher and window snapshots.
func (d *Dispatcher) Stats(instances int) Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Cache:   d.cache.Stats(),
		Batcher: d.batcher.Stats(),
		Window:  d.window.Stats(d.now(), instances),
	}
}

func (d *Dispatcher) launch(batch *serve.ReadyBatch[*item]) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		_ = d.execute(batch)
	}()
}

// execute scores one batch and delivers an outcome to every waiter. The
// backend context is detached from any caller so one caller leaving does
// not fail the others; backend.WithTimeout bounds the call instead.
func (d *Dispatcher) execute(batch *serve.ReadyBatch[*item]) error {
	d.metrics.BatchReleased(string(batch.Reason), len(batch.Items), batch.Wait())

	features := make([]serve.Features, len(batch.Items))
	for i, it := range batch.Items {
		features[i] = it.features
	}

	callStart := d.now()
	preds, err := d.backend.Predict(context.Background(), features)
	if err == nil && len(preds) != len(batch.Items) {
		err = fmt.Errorf("backend returned %d predictions for %d items", len(preds), len(batch.Items))
	}
	callDur := d.now().Sub(callStart)
	d.metrics.BackendCall(callDur, err)

	record := trace.FlushRecord{
		BatchID:  batch.ID,
		Time:     batch.FlushedAt,
		Size:     len(batch.Items),
		Reason:   string(batch.Reason),
		Wait:     batch.Wait(),
		Duration: callDur,
	}

	d.mu.Lock()
	d.window.ObserveBusy(d.now(), callDur)
	if err == nil {
		for i, it := range batch.Items {
			d.cache.Put(it.fp, preds[i])
		}
	}
	entries := d.cache.Len()
	d.mu.Unlock()
	d.metrics.CacheEntries(entries)

	if err != nil {
		failure := &serve.BackendFailure{BatchID: batch.ID, Size: len(batch.Items), Cause: err}
		logrus.Warnf("dispatch: %v", failure)
		record.Err = err.Error()
		d.trace.RecordFlush(record)
		for _, it := range batch.Items {
			it.out <- outcome{err: failure}
		}
		return failure
	}

	d.trace.RecordFlush(record)
	for i, it := range batch.Items {
		it.out <- outcome{pred: preds[i]}
	}
	return nil
}
