// Package backend provides compute backends for the serving core. The set
// of backends is closed; New rejects unknown names.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/inference-sim/inference-serve/serve"
)

// New constructs the backend named by cfg.Name. An empty name selects the
// placeholder backend.
func New(cfg serve.BackendConfig) (serve.Backend, error) {
	if !serve.ValidBackends[cfg.Name] {
		return nil, serve.InvalidConfig("unknown backend %q", cfg.Name)
	}
	var b serve.Backend
	switch cfg.Name {
	case "", "placeholder":
		b = Placeholder{}
	case "fixed-latency":
		b = &FixedLatency{Latency: cfg.Latency}
	case "remote":
		r, err := NewRemote(cfg.URL)
		if err != nil {
			return nil, err
		}
		b = r
	default:
		panic(fmt.Sprintf("unhandled backend %q", cfg.Name))
	}
	if cfg.Timeout > 0 {
		b = WithTimeout(b, cfg.Timeout)
	}
	return b, nil
}

// Placeholder returns the same demo prediction for every input.
type Placeholder struct{}

// PlaceholderPrediction is the fixed output of Placeholder.
func PlaceholderPrediction() serve.Prediction {
	return serve.Prediction{Prediction: 1, Probability: []float64{0.3, 0.7}}
}

func (Placeholder) Predict(ctx context.Context, batch []serve.Features) ([]serve.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]serve.Prediction, len(batch))
	for i := range out {
		out[i] = PlaceholderPrediction()
	}
	return out, nil
}

// FixedLatency behaves like Placeholder after sleeping Latency per batch.
type FixedLatency struct {
	Latency time.Duration
}

func (f *FixedLatency) Predict(ctx context.Context, batch []serve.Features) ([]serve.Prediction, error) {
	timer := time.NewTimer(f.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return Placeholder{}.Predict(ctx, batch)
}

type timeoutBackend struct {
	next    serve.Backend
	timeout time.Duration
}

// WithTimeout bounds every Predict call on b by d.
func WithTimeout(b serve.Backend, d time.Duration) serve.Backend {
	return &timeoutBackend{next: b, timeout: d}
}

func (t *timeoutBackend) Predict(ctx context.Context, batch []serve.Features) ([]serve.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	preds, err := t.next.Predict(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("backend call (timeout %v): %w", t.timeout, err)
	}
	return preds, nil
}
