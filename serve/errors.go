package serve

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned by constructors and Config.Validate
	// when a parameter is out of range or names an unknown variant.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDegenerateInput is returned when a feature mapping cannot be
	// canonically encoded (func, chan, NaN, ±Inf values).
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvalidMetrics is returned by ScaleController.Decide for metrics
	// outside their documented ranges.
	ErrInvalidMetrics = errors.New("invalid metrics")

	// ErrBackendFailure matches any *BackendFailure via errors.Is.
	ErrBackendFailure = errors.New("backend failure")
)

// InvalidConfig wraps ErrInvalidConfiguration with a formatted detail.
func InvalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func invalidMetrics(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMetrics, fmt.Sprintf(format, args...))
}

// BackendFailure reports that the compute backend failed a whole batch.
// Every caller waiting on an item of the batch receives the same failure.
type BackendFailure struct {
	BatchID uint64
	Size    int
	Cause   error
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("backend failure on batch %d (%d items): %v", e.BatchID, e.Size, e.Cause)
}

func (e *BackendFailure) Unwrap() error { return e.Cause }

// Is reports ErrBackendFailure as a match so callers need not type-assert.
func (e *BackendFailure) Is(target error) bool {
	return target == ErrBackendFailure
}
