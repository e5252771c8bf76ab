package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geocontext/internal/cache/snapcache"
	"geocontext/internal/geo"
	"geocontext/internal/reportlog"
	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

var madrid = geo.Coordinate{Lat: 40.4168, Lon: -3.7038}

type countingPlaces struct {
	calls atomic.Int64
	recs  []source.PlaceRecord
	err   error
	// block, when set, stalls calls for the given radius.
	block       chan struct{}
	blockRadius int
}

func (p *countingPlaces) Search(_ context.Context, _ geo.Coordinate, radius int, _ []string) ([]source.PlaceRecord, error) {
	p.calls.Add(1)
	if p.block != nil && radius == p.blockRadius {
		<-p.block
	}
	return p.recs, p.err
}

type stubReverse struct{ err error }

func (r stubReverse) Lookup(context.Context, geo.Coordinate) (*source.PlaceInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &source.PlaceInfo{Name: "La Latina", Municipality: "Madrid"}, nil
}

func unavailable(provider string) error {
	return &source.Unavailable{Provider: provider, Reason: "timeout"}
}

func healthyService(t *testing.T, store reportlog.Store) (*Service, *countingPlaces) {
	t.Helper()
	places := &countingPlaces{recs: []source.PlaceRecord{{
		Name:       "Casa Lucio",
		Coordinate: geo.Coordinate{Lat: 40.4123, Lon: -3.7091},
		RawKind:    "amenity=restaurant",
		Provider:   source.ProviderOverpass,
	}}}
	builder := snapshot.NewBuilder(snapshot.Adapters{
		Places:  places,
		Reverse: stubReverse{},
	}, time.Second)
	var worker *reportlog.Worker
	if store != nil {
		worker = reportlog.NewWorker(store, 8)
		t.Cleanup(worker.Close)
	}
	svc := NewService(builder, snapcache.NewResilient(snapcache.NewTTLStore(time.Minute)), nil, nil, worker)
	return svc, places
}

func TestBuildContextCachesByKey(t *testing.T) {
	svc, places := healthyService(t, nil)
	ctx := context.Background()

	first, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	if err != nil {
		t.Fatalf("cached build: %v", err)
	}
	if places.calls.Load() != 1 {
		t.Fatalf("cache hit must not touch adapters, got %d calls", places.calls.Load())
	}
	if first != second {
		t.Fatalf("cache hit should return the stored snapshot")
	}
}

func TestBuildContextAllowStale(t *testing.T) {
	store := snapcache.NewResilient(snapcache.NewTTLStore(time.Minute))
	svc, _ := healthyService(t, nil)
	svc.Cache = store
	ctx := context.Background()

	if _, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{}); err != nil {
		t.Fatalf("healthy build: %v", err)
	}

	// Everything down now, different query key.
	broken := NewService(snapshot.NewBuilder(snapshot.Adapters{
		Places:  &countingPlaces{err: unavailable(source.ProviderOverpass)},
		Reverse: stubReverse{err: unavailable(source.ProviderNominatim)},
	}, time.Second), store, nil, nil, nil)

	other := geo.Coordinate{Lat: 41.3874, Lon: 2.1686}
	if _, _, err := broken.BuildContext(ctx, other, 800, BuildOptions{}); !errors.Is(err, snapshot.ErrNoViableSnapshot) {
		t.Fatalf("expected ErrNoViableSnapshot, got %v", err)
	}

	snap, warnings, err := broken.BuildContext(ctx, other, 800, BuildOptions{AllowStale: true})
	if err != nil {
		t.Fatalf("stale build: %v", err)
	}
	if snap.Place.Name != "La Latina" {
		t.Fatalf("expected the last known good snapshot, got %q", snap.Place.Name)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "last known good") {
			found = true
		}
	}
	if !found {
		t.Fatalf("stale serving must be flagged: %v", warnings)
	}
}

func TestBuildContextAllowStaleWithPlacesDown(t *testing.T) {
	store := snapcache.NewResilient(snapcache.NewTTLStore(time.Minute))
	svc, _ := healthyService(t, nil)
	svc.Cache = store
	ctx := context.Background()

	if _, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{}); err != nil {
		t.Fatalf("healthy build: %v", err)
	}

	// Places down, reverse geocoder still up: the build succeeds with a
	// minimal snapshot instead of erroring.
	degraded := NewService(snapshot.NewBuilder(snapshot.Adapters{
		Places:  &countingPlaces{err: unavailable(source.ProviderOverpass)},
		Reverse: stubReverse{},
	}, time.Second), store, nil, nil, nil)

	other := geo.Coordinate{Lat: 41.3874, Lon: 2.1686}
	minimal, _, err := degraded.BuildContext(ctx, other, 900, BuildOptions{})
	if err != nil {
		t.Fatalf("degraded build: %v", err)
	}
	if minimal.SourcesUsed.Places {
		t.Fatalf("places adapter was down, SourcesUsed.Places must be false")
	}

	snap, warnings, err := degraded.BuildContext(ctx, other, 800, BuildOptions{AllowStale: true})
	if err != nil {
		t.Fatalf("stale build: %v", err)
	}
	if snap.Place.Name != "La Latina" || !snap.SourcesUsed.Places {
		t.Fatalf("AllowStale with places down should serve the last known good snapshot, got %+v", snap.Place)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "last known good") {
			found = true
		}
	}
	if !found {
		t.Fatalf("stale serving must be flagged: %v", warnings)
	}

	// The minimal snapshot cached at radius 900 must not shadow the
	// stale option either.
	snap, _, err = degraded.BuildContext(ctx, other, 900, BuildOptions{AllowStale: true})
	if err != nil {
		t.Fatalf("stale build over cached minimal snapshot: %v", err)
	}
	if snap.Place.Name != "La Latina" {
		t.Fatalf("cached minimal snapshot served despite AllowStale, got %q", snap.Place.Name)
	}
}

func TestBuildContextWarningsAreCallerOwned(t *testing.T) {
	svc, _ := healthyService(t, nil)
	ctx := context.Background()

	if _, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{}); err != nil {
		t.Fatalf("build: %v", err)
	}
	snap, warnings, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	if err != nil {
		t.Fatalf("cached build: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatalf("fixture should produce degradation warnings")
	}

	warnings[0] = "mutated by caller"
	warnings = append(warnings, "appended by caller")
	if len(warnings) <= len(snap.Warnings) {
		t.Fatalf("append should have grown the caller's slice")
	}
	if snap.Warnings[0] == "mutated by caller" {
		t.Fatalf("caller mutation leaked into the cached snapshot")
	}
	for _, w := range snap.Warnings {
		if w == "appended by caller" {
			t.Fatalf("caller append leaked into the cached snapshot")
		}
	}
}

type memLogStore struct {
	mu    sync.Mutex
	saved []reportlog.Entry
}

func (m *memLogStore) Save(_ context.Context, e reportlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, e)
	return nil
}

func (m *memLogStore) Recent(_ context.Context, key string, limit int) ([]reportlog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reportlog.Entry
	for i := len(m.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if m.saved[i].PlaceKey == key {
			out = append(out, m.saved[i])
		}
	}
	return out, nil
}

func TestGenerateReportAllSourcesEmpty(t *testing.T) {
	store := &memLogStore{}
	worker := reportlog.NewWorker(store, 8)
	t.Cleanup(worker.Close)

	builder := snapshot.NewBuilder(snapshot.Adapters{
		Places:  &countingPlaces{err: unavailable(source.ProviderOverpass)},
		Reverse: stubReverse{},
	}, time.Second)
	svc := NewService(builder, snapcache.NewResilient(snapcache.NewTTLStore(time.Minute)), nil, nil, worker)
	ctx := context.Background()

	snap, warnings, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	if err != nil {
		t.Fatalf("a working reverse geocoder must be enough: %v", err)
	}
	if snap.POISummary.Total != 0 {
		t.Fatalf("expected empty snapshot, got %d POIs", snap.POISummary.Total)
	}
	if len(warnings) == 0 {
		t.Fatalf("degraded build must warn")
	}

	rep, generative, _ := svc.GenerateReport(ctx, snap, "")
	if generative {
		t.Fatalf("no backend configured, fallback expected")
	}
	if !rep.InsufficientData {
		t.Fatalf("empty snapshot must be insufficient")
	}
	joined := strings.Join(rep.Limitations, " ")
	if !strings.Contains(joined, "points of interest") {
		t.Fatalf("limitations should name the missing POI axis: %v", rep.Limitations)
	}

	entry, ok := svc.RecentReport(ctx, "La Latina")
	if !ok {
		t.Fatalf("the report should have been persisted")
	}
	if entry.Category != reportlog.CategoryFallback {
		t.Fatalf("entry category = %q, want fallback", entry.Category)
	}
	var stored snapshot.Report
	if err := json.Unmarshal(entry.Payload, &stored); err != nil {
		t.Fatalf("stored payload unreadable: %v", err)
	}
}

func TestSupersededBuildIsNotCached(t *testing.T) {
	svc, places := healthyService(t, nil)
	places.block = make(chan struct{})
	places.blockRadius = 1200
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	}()

	// Give the slow build time to start, then run a newer query.
	time.Sleep(20 * time.Millisecond)
	if _, _, err := svc.BuildContext(ctx, madrid, 800, BuildOptions{}); err != nil {
		t.Fatalf("fast build: %v", err)
	}

	close(places.block)
	<-done

	// The superseded build's key must still miss.
	if _, ok := svc.Cache.Get(ctx, snapcache.KeyFor(madrid, 1200)); ok {
		t.Fatalf("superseded build must not be cached")
	}
	if _, ok := svc.Cache.Get(ctx, snapcache.KeyFor(madrid, 800)); !ok {
		t.Fatalf("latest build should be cached")
	}
}

func TestAnswerWithoutChatEngine(t *testing.T) {
	svc, _ := healthyService(t, nil)
	ctx := context.Background()

	snap, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	answer, _, _ := svc.Answer(ctx, "where should I eat", snap, nil)
	if !strings.Contains(answer, "Casa Lucio") {
		t.Fatalf("answer should use the snapshot, got %q", answer)
	}
}

func TestAnswerWithNilBuilder(t *testing.T) {
	svc, _ := healthyService(t, nil)
	ctx := context.Background()

	snap, _, err := svc.BuildContext(ctx, madrid, 1200, BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	bare := &Service{}
	answer, _, _ := bare.Answer(ctx, "where should I eat", snap, nil)
	if answer == "" {
		t.Fatalf("a service without builder or chat engine must still answer")
	}
}
