package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures batch flushes and scale decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Trace collects decision records. Recording is safe for concurrent use;
// a Trace at TraceLevelNone (or a nil *Trace) drops every record.
type Trace struct {
	Level TraceLevel

	mu      sync.Mutex
	flushes []FlushRecord
	scales  []ScaleRecord
}

// New creates a Trace ready for recording.
func New(level TraceLevel) *Trace {
	if level == "" {
		level = TraceLevelNone
	}
	return &Trace{
		Level:   level,
		flushes: make([]FlushRecord, 0),
		scales:  make([]ScaleRecord, 0),
	}
}

func (t *Trace) enabled() bool {
	return t != nil && t.Level == TraceLevelDecisions
}

// RecordFlush appends a batch flush record.
func (t *Trace) RecordFlush(record FlushRecord) {
	if !t.enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushes = append(t.flushes, record)
}

// RecordScale appends a scale decision record.
func (t *Trace) RecordScale(record ScaleRecord) {
	if !t.enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scales = append(t.scales, record)
}

// Flushes returns a copy of the recorded flushes in recording order.
func (t *Trace) Flushes() []FlushRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FlushRecord, len(t.flushes))
	copy(out, t.flushes)
	return out
}

// Scales returns a copy of the recorded scale decisions in recording order.
func (t *Trace) Scales() []ScaleRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ScaleRecord, len(t.scales))
	copy(out, t.scales)
	return out
}
