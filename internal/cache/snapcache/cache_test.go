package snapcache

import (
	"context"
	"testing"
	"time"

	"geocontext/internal/geo"
	"geocontext/internal/snapshot"
)

func snapFor(name string, placesUsed bool) *snapshot.ContextSnapshot {
	s := &snapshot.ContextSnapshot{
		Center:       geo.Coordinate{Lat: 40.4168, Lon: -3.7038},
		RadiusMeters: 1200,
	}
	s.Place.Name = name
	s.SourcesUsed.Places = placesUsed
	return s
}

func TestKeyForRounds(t *testing.T) {
	a := KeyFor(geo.Coordinate{Lat: 40.41680001, Lon: -3.70380001}, 1200)
	b := KeyFor(geo.Coordinate{Lat: 40.41680049, Lon: -3.70379951}, 1200)
	if a != b {
		t.Fatalf("keys should round to the same 1e-6 grid: %+v vs %+v", a, b)
	}
	c := KeyFor(geo.Coordinate{Lat: 40.4168, Lon: -3.7038}, 1500)
	if a == c {
		t.Fatalf("different radius must yield a different key")
	}
}

func TestTTLStoreExpiry(t *testing.T) {
	store := NewTTLStore(time.Minute)
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	key := KeyFor(geo.Coordinate{Lat: 40.4168, Lon: -3.7038}, 1200)
	store.Set(context.Background(), key, snapFor("Madrid", true))

	if _, ok := store.Get(context.Background(), key); !ok {
		t.Fatalf("fresh entry should hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := store.Get(context.Background(), key); ok {
		t.Fatalf("expired entry should miss")
	}
	if len(store.m) != 0 {
		t.Fatalf("expired entry should have been dropped")
	}
}

func TestTTLStoreSweepsOnSet(t *testing.T) {
	store := NewTTLStore(time.Minute)
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	old := KeyFor(geo.Coordinate{Lat: 1, Lon: 1}, 500)
	store.Set(context.Background(), old, snapFor("old", true))
	now = now.Add(5 * time.Minute)
	store.Set(context.Background(), KeyFor(geo.Coordinate{Lat: 2, Lon: 2}, 500), snapFor("new", true))

	if _, ok := store.m[old]; ok {
		t.Fatalf("stale entry should be swept on write")
	}
}

func TestResilientLastGoodSemantics(t *testing.T) {
	cache := NewResilient(NewTTLStore(time.Minute))
	ctx := context.Background()
	key := KeyFor(geo.Coordinate{Lat: 40.4168, Lon: -3.7038}, 1200)

	if _, ok := cache.LastGood(); ok {
		t.Fatalf("no last-good before any successful build")
	}

	// A degraded build (places index down) must not become last-good.
	cache.Set(ctx, key, snapFor("degraded", false))
	if _, ok := cache.LastGood(); ok {
		t.Fatalf("degraded snapshot must not be promoted to last-good")
	}

	cache.Set(ctx, key, snapFor("healthy", true))
	good, ok := cache.LastGood()
	if !ok || good.Place.Name != "healthy" {
		t.Fatalf("expected healthy snapshot as last-good, got %+v ok=%v", good, ok)
	}

	// Last-good survives across different query keys.
	other := KeyFor(geo.Coordinate{Lat: 41.0, Lon: -4.0}, 800)
	cache.Set(ctx, other, snapFor("degraded-2", false))
	good, ok = cache.LastGood()
	if !ok || good.Place.Name != "healthy" {
		t.Fatalf("last-good should persist across degraded builds")
	}
}

func TestResilientMetrics(t *testing.T) {
	cache := NewResilient(NewTTLStore(time.Minute))
	ctx := context.Background()
	key := KeyFor(geo.Coordinate{Lat: 40.4168, Lon: -3.7038}, 1200)

	if _, ok := cache.Get(ctx, key); ok {
		t.Fatalf("unexpected hit")
	}
	cache.Set(ctx, key, snapFor("x", true))
	if _, ok := cache.Get(ctx, key); !ok {
		t.Fatalf("expected hit")
	}
	m := cache.Metrics()
	if m.Hits != 1 || m.Misses != 1 {
		t.Fatalf("metrics = %+v, want 1 hit / 1 miss", m)
	}
}
