// Package snapcache is the two-tier resilience cache for context
// snapshots: an exact-match TTL tier keyed by rounded coordinates plus a
// single last-known-good slot used when the primary places index is down.
package snapcache

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"geocontext/internal/geo"
	"geocontext/internal/metrics"
	"geocontext/internal/snapshot"
)

// Key identifies one exact query. Coordinates are rounded to 1e-6 degrees
// so float noise from callers doesn't defeat the cache.
type Key struct {
	LatE6  int64
	LonE6  int64
	Radius int
}

func KeyFor(center geo.Coordinate, radiusMeters int) Key {
	return Key{
		LatE6:  int64(math.Round(center.Lat * 1e6)),
		LonE6:  int64(math.Round(center.Lon * 1e6)),
		Radius: radiusMeters,
	}
}

// Store is the exact-match tier contract. Implementations must be safe
// for concurrent use; Get must never block on a concurrent Set.
type Store interface {
	Get(ctx context.Context, key Key) (*snapshot.ContextSnapshot, bool)
	Set(ctx context.Context, key Key, snap *snapshot.ContextSnapshot)
}

// MetricsSnapshot exposes cache counters for diagnostics.
type MetricsSnapshot struct {
	Hits         uint64
	Misses       uint64
	LastGoodHits uint64
}

// TTLStore is the in-memory exact-match tier. Eviction is TTL-only: entry
// cardinality is bounded by realistic query patterns, not data volume, so
// there is no LRU pressure to manage. Expired entries are dropped lazily
// on read and swept opportunistically on write.
type TTLStore struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[Key]entry

	now func() time.Time
}

type entry struct {
	snap      *snapshot.ContextSnapshot
	expiresAt time.Time
}

func NewTTLStore(ttl time.Duration) *TTLStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TTLStore{ttl: ttl, m: make(map[Key]entry), now: time.Now}
}

func (s *TTLStore) Get(_ context.Context, key Key) (*snapshot.ContextSnapshot, bool) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a fresher Set may have landed.
		if cur, still := s.m[key]; still && s.now().After(cur.expiresAt) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.snap, true
}

func (s *TTLStore) Set(_ context.Context, key Key, snap *snapshot.ContextSnapshot) {
	if snap == nil {
		return
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{snap: snap, expiresAt: now.Add(s.ttl)}
	for k, e := range s.m {
		if now.After(e.expiresAt) {
			delete(s.m, k)
		}
	}
}

// Resilient wraps an exact-match Store with the last-known-good slot.
// The slot is overwritten only on fully successful builds and is consulted
// explicitly by the caller, never implicitly on a plain miss.
type Resilient struct {
	store Store

	lastMu   sync.RWMutex
	lastGood *snapshot.ContextSnapshot

	hits     atomic.Uint64
	misses   atomic.Uint64
	goodHits atomic.Uint64
}

func NewResilient(store Store) *Resilient {
	return &Resilient{store: store}
}

// Get returns a fresh cached snapshot for the exact key, if any.
func (c *Resilient) Get(ctx context.Context, key Key) (*snapshot.ContextSnapshot, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	snap, ok := c.store.Get(ctx, key)
	if ok {
		c.hits.Add(1)
		metrics.CacheHitsTotal.WithLabelValues("exact").Inc()
		return snap, true
	}
	c.misses.Add(1)
	metrics.CacheMissesTotal.WithLabelValues("exact").Inc()
	return nil, false
}

// Set caches a snapshot under its exact key and, when the build was fully
// healthy on the primary places axis, promotes it to last-known-good.
func (c *Resilient) Set(ctx context.Context, key Key, snap *snapshot.ContextSnapshot) {
	if c == nil || snap == nil {
		return
	}
	if c.store != nil {
		c.store.Set(ctx, key, snap)
	}
	if snap.SourcesUsed.Places {
		c.lastMu.Lock()
		c.lastGood = snap
		c.lastMu.Unlock()
	}
}

// LastGood returns the last fully successful snapshot from any prior
// query, for callers that explicitly opted into degraded mode.
func (c *Resilient) LastGood() (*snapshot.ContextSnapshot, bool) {
	if c == nil {
		return nil, false
	}
	c.lastMu.RLock()
	snap := c.lastGood
	c.lastMu.RUnlock()
	if snap == nil {
		return nil, false
	}
	c.goodHits.Add(1)
	metrics.CacheHitsTotal.WithLabelValues("last_good").Inc()
	return snap, true
}

func (c *Resilient) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		LastGoodHits: c.goodHits.Load(),
	}
}
