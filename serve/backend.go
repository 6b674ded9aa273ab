package serve

import (
	"context"
	"slices"
)

// Prediction is the result payload cached per fingerprint.
type Prediction struct {
	Prediction  int       `json:"prediction"`
	Probability []float64 `json:"probability"`
}

// Clone returns a copy that shares no memory with p.
func (p Prediction) Clone() Prediction {
	p.Probability = slices.Clone(p.Probability)
	return p
}

// Backend scores an ordered batch of feature mappings. Implementations must
// return exactly one Prediction per input, in input order, or an error
// that fails the whole batch.
type Backend interface {
	Predict(ctx context.Context, batch []Features) ([]Prediction, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, batch []Features) ([]Prediction, error)

func (f BackendFunc) Predict(ctx context.Context, batch []Features) ([]Prediction, error) {
	return f(ctx, batch)
}
