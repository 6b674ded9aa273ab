package serve

import (
	"container/list"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"
)

// EvictionPolicy names a BoundedCache eviction strategy.
type EvictionPolicy string

const (
	// EvictFIFO evicts the oldest-inserted entry. Overwriting a key keeps
	// its original position.
	EvictFIFO EvictionPolicy = "fifo"
	// EvictLRU evicts the least recently read or written entry.
	EvictLRU EvictionPolicy = "lru"
)

// ValidEvictionPolicies is the set of recognized eviction policy names.
// Empty defaults to fifo.
var ValidEvictionPolicies = map[EvictionPolicy]bool{"": true, EvictFIFO: true, EvictLRU: true}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// entryStore is the ordering structure behind a BoundedCache.
type entryStore[V any] interface {
	get(key Fingerprint) (V, bool)
	contains(key Fingerprint) bool
	add(key Fingerprint, value V)
	len() int
	keys() []Fingerprint
}

// CacheOption configures a BoundedCache.
type CacheOption[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	policy  EvictionPolicy
	onEvict func(Fingerprint, V)
}

// WithEvictionPolicy selects the eviction policy. Unknown names are
// rejected by NewBoundedCache.
func WithEvictionPolicy[V any](p EvictionPolicy) CacheOption[V] {
	return func(o *cacheOptions[V]) { o.policy = p }
}

// WithOnEvict registers a callback invoked synchronously for each evicted entry.
func WithOnEvict[V any](fn func(Fingerprint, V)) CacheOption[V] {
	return func(o *cacheOptions[V]) { o.onEvict = fn }
}

// Cloner is implemented by values that hold shared memory. BoundedCache
// stores a clone on Put and hands out a clone on Get, so no caller ever
// aliases a cached value.
type Cloner[V any] interface {
	Clone() V
}

// BoundedCache maps fingerprints to results with a fixed capacity.
// It is not safe for concurrent use.
type BoundedCache[V any] struct {
	store     entryStore[V]
	capacity  int
	policy    EvictionPolicy
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewBoundedCache creates a cache holding at most capacity entries.
func NewBoundedCache[V any](capacity int, opts ...CacheOption[V]) (*BoundedCache[V], error) {
	if capacity <= 0 {
		return nil, InvalidConfig("cache capacity must be > 0, got %d", capacity)
	}
	o := cacheOptions[V]{policy: EvictFIFO}
	for _, opt := range opts {
		opt(&o)
	}
	if !ValidEvictionPolicies[o.policy] {
		return nil, InvalidConfig("unknown eviction policy %q", o.policy)
	}
	if o.policy == "" {
		o.policy = EvictFIFO
	}

	c := &BoundedCache[V]{capacity: capacity, policy: o.policy}
	evicted := func(k Fingerprint, v V) {
		c.evictions++
		logrus.Debugf("cache: evicted %s", k)
		if o.onEvict != nil {
			o.onEvict(k, v)
		}
	}

	switch o.policy {
	case EvictLRU:
		lru, err := simplelru.NewLRU[Fingerprint, V](capacity, evicted)
		if err != nil {
			return nil, InvalidConfig("lru: %v", err)
		}
		c.store = &lruStore[V]{lru: lru}
	default:
		c.store = newFIFOStore[V](capacity, evicted)
	}
	return c, nil
}

// Get returns the value for key and counts a hit or a miss.
func (c *BoundedCache[V]) Get(key Fingerprint) (V, bool) {
	v, ok := c.store.get(key)
	if !ok {
		c.misses++
		return v, false
	}
	c.hits++
	return detach(v), true
}

// Contains reports whether key is cached without touching counters or order.
func (c *BoundedCache[V]) Contains(key Fingerprint) bool {
	return c.store.contains(key)
}

// Put inserts or replaces the value for key. A new key at capacity first
// evicts one entry chosen by the eviction policy.
func (c *BoundedCache[V]) Put(key Fingerprint, value V) {
	c.store.add(key, detach(value))
}

func detach[V any](v V) V {
	if cl, ok := any(v).(Cloner[V]); ok {
		return cl.Clone()
	}
	return v
}

// Len returns the number of live entries.
func (c *BoundedCache[V]) Len() int { return c.store.len() }

// Keys returns live keys in eviction order, next victim first.
func (c *BoundedCache[V]) Keys() []Fingerprint { return c.store.keys() }

// Policy returns the active eviction policy.
func (c *BoundedCache[V]) Policy() EvictionPolicy { return c.policy }

// Stats returns the current counters. HitRate is 0 before the first lookup.
func (c *BoundedCache[V]) Stats() CacheStats {
	s := CacheStats{
		Size:      c.store.len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// fifoStore keeps entries in insertion order; overwrites replace the value
// in place.
type fifoStore[V any] struct {
	items    map[Fingerprint]*list.Element
	order    *list.List // front = oldest
	capacity int
	onEvict  func(Fingerprint, V)
}

type fifoEntry[V any] struct {
	key   Fingerprint
	value V
}

func newFIFOStore[V any](capacity int, onEvict func(Fingerprint, V)) *fifoStore[V] {
	return &fifoStore[V]{
		items:    make(map[Fingerprint]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		onEvict:  onEvict,
	}
}

func (s *fifoStore[V]) get(key Fingerprint) (V, bool) {
	if elem, ok := s.items[key]; ok {
		return elem.Value.(*fifoEntry[V]).value, true
	}
	var zero V
	return zero, false
}

func (s *fifoStore[V]) contains(key Fingerprint) bool {
	_, ok := s.items[key]
	return ok
}

func (s *fifoStore[V]) add(key Fingerprint, value V) {
	if elem, ok := s.items[key]; ok {
		elem.Value = &fifoEntry[V]{key: key, value: value}
		return
	}
	if s.order.Len() >= s.capacity {
		oldest := s.order.Front()
		entry := oldest.Value.(*fifoEntry[V])
		s.order.Remove(oldest)
		delete(s.items, entry.key)
		s.onEvict(entry.key, entry.value)
	}
	s.items[key] = s.order.PushBack(&fifoEntry[V]{key: key, value: value})
}

func (s *fifoStore[V]) len() int { return s.order.Len() }

func (s *fifoStore[V]) keys() []Fingerprint {
	keys := make([]Fingerprint, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*fifoEntry[V]).key)
	}
	return keys
}

// lruStore adapts simplelru to entryStore.
type lruStore[V any] struct {
	lru *simplelru.LRU[Fingerprint, V]
}

func (s *lruStore[V]) get(key Fingerprint) (V, bool) { return s.lru.Get(key) }
func (s *lruStore[V]) contains(key Fingerprint) bool { return s.lru.Contains(key) }
func (s *lruStore[V]) add(key Fingerprint, value V)  { s.lru.Add(key, value) }
func (s *lruStore[V]) len() int                      { return s.lru.Len() }
func (s *lruStore[V]) keys() []Fingerprint           { return s.lru.Keys() }
