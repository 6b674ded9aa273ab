// Package serve provides the serving-side admission core: a bounded
// prediction cache, a request batcher, and a scale controller.
//
// # Reading Guide
//
// Start with these files:
//   - fingerprint.go: canonical request fingerprints used as cache keys
//   - cache.go: BoundedCache with FIFO (default) or LRU eviction
//   - batcher.go: size- or age-triggered request batching
//   - scaler.go: threshold-based scale decisions clamped to [min, max]
//   - window.go: sliding metrics window feeding the scale controller
//
// # Architecture
//
// The serve package defines the core types and the Backend interface;
// collaborators live in sub-packages:
//   - serve/backend/: compute backends (placeholder, fixed-latency, remote)
//   - serve/dispatch/: wires cache, batcher and backend for concurrent callers
//   - serve/autoscale/: periodic scale loop and orchestrators
//   - serve/promstats/: Prometheus collectors
//   - serve/trace/: decision trace recording
//
// # Concurrency
//
// BoundedCache, Batcher and ScaleController are single-writer types. None of
// them is internally synchronized; callers sharing an instance across
// goroutines must serialize access (dispatch.Dispatcher does this with one
// mutex). No operation blocks.
package serve
