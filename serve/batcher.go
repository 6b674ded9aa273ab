package serve

import (
	"time"

	"github.com/sirupsen/logrus"
)

// FlushReason records which predicate released a batch.
type FlushReason string

const (
	FlushSize    FlushReason = "size"    // pending count reached the batch size
	FlushTimeout FlushReason = "timeout" // max wait elapsed, detected on admission
	FlushStale   FlushReason = "stale"   // max wait elapsed, detected by FlushIfStale
	FlushDrain   FlushReason = "drain"   // explicit Flush
)

// ReadyBatch is a group of items released together, in admission order.
type ReadyBatch[T any] struct {
	ID        uint64
	Items     []T
	OpenedAt  time.Time
	FlushedAt time.Time
	Reason    FlushReason
}

// Wait is how long the first item sat in the batch before release.
func (b *ReadyBatch[T]) Wait() time.Duration {
	return b.FlushedAt.Sub(b.OpenedAt)
}

// BatcherStats is a point-in-time view of batcher counters.
type BatcherStats struct {
	Pending        int     `json:"pending"`
	BatchSize      int     `json:"batch_size"`
	MaxWaitMs      float64 `json:"max_wait_ms"`
	Batches        uint64  `json:"batches"`
	ItemsFlushed   uint64  `json:"items_flushed"`
	AvgBatchSize   float64 `json:"avg_batch_size"`
	TimeoutFlushes uint64  `json:"timeout_flushes"`
}

// BatcherOption configures a Batcher.
type BatcherOption func(*batcherOptions)

type batcherOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now as the batcher's time source.
func WithClock(now func() time.Time) BatcherOption {
	return func(o *batcherOptions) { o.now = now }
}

// Batcher accumulates items until either batchSize items are pending or
// the oldest pending item has waited maxWait. Both predicates are checked
// synchronously: on Admit, and on FlushIfStale. Nothing fires on its own,
// so a caller needing bounded latency for a half-full batch must call
// FlushIfStale periodically.
//
// Batcher is not safe for concurrent use.
type Batcher[T any] struct {
	batchSize int
	maxWait   time.Duration
	now       func() time.Time

	items    []T
	openedAt time.Time // admission time of items[0]; zero when empty

	nextID         uint64
	batches        uint64
	itemsFlushed   uint64
	timeoutFlushes uint64
}

// NewBatcher creates a Batcher. batchSize must be positive and maxWait
// non-negative; a zero maxWait flushes every admission on its own.
func NewBatcher[T any](batchSize int, maxWait time.Duration, opts ...BatcherOption) (*Batcher[T], error) {
	if batchSize <= 0 {
		return nil, InvalidConfig("batch size must be > 0, got %d", batchSize)
	}
	if maxWait < 0 {
		return nil, InvalidConfig("max wait must be >= 0, got %v", maxWait)
	}
	o := batcherOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Batcher[T]{
		batchSize: batchSize,
		maxWait:   maxWait,
		now:       o.now,
		items:     make([]T, 0, batchSize),
	}, nil
}

// Admit appends item and returns a batch if either flush predicate holds.
func (b *Batcher[T]) Admit(item T) (*ReadyBatch[T], bool) {
	now := b.now()
	if len(b.items) == 0 {
		b.openedAt = now
	}
	b.items = append(b.items, item)

	switch {
	case len(b.items) >= b.batchSize:
		return b.release(now, FlushSize), true
	case now.Sub(b.openedAt) >= b.maxWait:
		return b.release(now, FlushTimeout), true
	}
	return nil, false
}

// FlushIfStale releases the pending items if the oldest has waited at
// least maxWait as of now. It returns false when nothing is pending or the
// batch is still fresh.
func (b *Batcher[T]) FlushIfStale(now time.Time) (*ReadyBatch[T], bool) {
	if len(b.items) == 0 || now.Sub(b.openedAt) < b.maxWait {
		return nil, false
	}
	return b.release(now, FlushStale), true
}

// Flush releases whatever is pending regardless of age.
func (b *Batcher[T]) Flush() (*ReadyBatch[T], bool) {
	if len(b.items) == 0 {
		return nil, false
	}
	return b.release(b.now(), FlushDrain), true
}

// Pending returns the number of items waiting for release.
func (b *Batcher[T]) Pending() int { return len(b.items) }

// BatchSize returns the configured batch size.
func (b *Batcher[T]) BatchSize() int { return b.batchSize }

// MaxWait returns the configured maximum wait.
func (b *Batcher[T]) MaxWait() time.Duration { return b.maxWait }

// Stats returns the current counters.
func (b *Batcher[T]) Stats() BatcherStats {
	s := BatcherStats{
		Pending:        len(b.items),
		BatchSize:      b.batchSize,
		MaxWaitMs:      float64(b.maxWait) / float64(time.Millisecond),
		Batches:        b.batches,
		ItemsFlushed:   b.itemsFlushed,
		TimeoutFlushes: b.timeoutFlushes,
	}
	if b.batches > 0 {
		s.AvgBatchSize = float64(b.itemsFlushed) / float64(b.batches)
	}
	return s
}

// release removes up to batchSize items from the head of the pending
// slice. Anything left over opens a new batch at now.
func (b *Batcher[T]) release(now time.Time, reason FlushReason) *ReadyBatch[T] {
	n := min(len(b.items), b.batchSize)
	out := make([]T, n)
	copy(out, b.items[:n])

	rest := b.items[n:]
	b.items = make([]T, len(rest), b.batchSize)
	copy(b.items, rest)

	b.nextID++
	batch := &ReadyBatch[T]{
		ID:        b.nextID,
		Items:     out,
		OpenedAt:  b.openedAt,
		FlushedAt: now,
		Reason:    reason,
	}
	if len(b.items) > 0 {
		b.openedAt = now
	} else {
		b.openedAt = time.Time{}
	}

	b.batches++
	b.itemsFlushed += uint64(n)
	if reason == FlushTimeout || reason == FlushStale {
		b.timeoutFlushes++
	}
	logrus.Debugf("batcher: released batch %d (%d items, reason=%s, wait=%v)", batch.ID, n, reason, batch.Wait())
	return batch
}
