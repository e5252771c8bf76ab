package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"geocontext/internal/fusion"
	"geocontext/internal/geo"
	"geocontext/internal/llmclient"
	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

func chatSnapshot() *snapshot.ContextSnapshot {
	snap := &snapshot.ContextSnapshot{
		Center:       geo.Coordinate{Lat: 40.4168, Lon: -3.7038},
		RadiusMeters: 1200,
		Place:        snapshot.Place{Name: "La Latina", Municipality: "Madrid"},
		POIsByCategory: map[fusion.Category][]fusion.POI{
			fusion.CategoryRestaurant: {
				{Name: "Casa Lucio", Category: fusion.CategoryRestaurant, DistanceMeters: 120},
				{Name: "Taberna Dos", Category: fusion.CategoryRestaurant, DistanceMeters: 340},
				{Name: "El Botin", Category: fusion.CategoryRestaurant, DistanceMeters: 520},
			},
		},
	}
	snap.POISummary = fusion.Summary{Counts: map[fusion.Category]int{fusion.CategoryRestaurant: 3}, Total: 3}
	snap.SourcesUsed.Places = true
	return snap
}

type scriptedPlaces struct {
	calls int
	recs  []source.PlaceRecord
	err   error
}

func (s *scriptedPlaces) Search(_ context.Context, _ geo.Coordinate, _ int, _ []string) ([]source.PlaceRecord, error) {
	s.calls++
	return s.recs, s.err
}

func TestAnswerGenerativeAccepted(t *testing.T) {
	fake := llmclient.NewFakeClient(llmclient.FakeStep{JSON: `{"answer":"Casa Lucio, 120 m away, is the classic choice."}`})
	e := NewEngine(fake, nil, nil)

	answer, limitations, used := e.Answer(context.Background(), "where should I eat", chatSnapshot(), nil)
	if !strings.Contains(answer, "Casa Lucio") {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(limitations) != 0 {
		t.Fatalf("unexpected limitations %v", limitations)
	}
	if !used.Places {
		t.Fatalf("sources_used should pass through")
	}
}

func TestAnswerRejectsRawJSONAndFallsBack(t *testing.T) {
	fake := llmclient.NewFakeClient(llmclient.FakeStep{JSON: `{"answer":"{\"name\":\"Casa Lucio\"}"}`})
	e := NewEngine(fake, nil, nil)

	answer, _, _ := e.Answer(context.Background(), "where should I eat", chatSnapshot(), nil)
	if !strings.Contains(answer, "Closest match: Casa Lucio") {
		t.Fatalf("expected templated answer, got %q", answer)
	}
	if !strings.Contains(answer, "Alternatives: Taberna Dos (340 m), El Botin (520 m).") {
		t.Fatalf("templated answer missing alternatives: %q", answer)
	}
}

func TestAnswerRejectsRefusalWhenDataExists(t *testing.T) {
	fake := llmclient.NewFakeClient(llmclient.FakeStep{JSON: `{"answer":"I don't know anything about this area."}`})
	e := NewEngine(fake, nil, nil)

	answer, _, _ := e.Answer(context.Background(), "restaurants nearby?", chatSnapshot(), nil)
	if strings.Contains(strings.ToLower(answer), "don't know") {
		t.Fatalf("refusal should have been replaced: %q", answer)
	}
	if !strings.Contains(answer, "Casa Lucio") {
		t.Fatalf("templated answer should name the nearest match: %q", answer)
	}
}

func TestAnswerBackendErrorNeverPropagates(t *testing.T) {
	fake := llmclient.NewFakeClient(llmclient.FakeStep{Err: errors.New("upstream 503")})
	e := NewEngine(fake, nil, nil)

	answer, _, _ := e.Answer(context.Background(), "where should I eat", chatSnapshot(), nil)
	if answer == "" {
		t.Fatalf("engine must always answer")
	}
}

func TestAnswerRequeryForNarrowCategory(t *testing.T) {
	places := &scriptedPlaces{recs: []source.PlaceRecord{{
		Name:       "Horno de San Onofre",
		Coordinate: geo.Coordinate{Lat: 40.4179, Lon: -3.7031},
		RawKind:    "shop=bakery",
		Provider:   source.ProviderOverpass,
	}}}
	e := NewEngine(nil, places, nil)

	snap := chatSnapshot()
	answer, _, _ := e.Answer(context.Background(), "¿hay panaderías cerca?", snap, nil)
	if !strings.Contains(answer, "Horno de San Onofre") {
		t.Fatalf("re-query result missing from answer: %q", answer)
	}
	if places.calls != 1 {
		t.Fatalf("expected one live lookup, got %d", places.calls)
	}

	// Asking again hits the re-query cache, not the provider.
	e.Answer(context.Background(), "panaderías?", snap, nil)
	if places.calls != 1 {
		t.Fatalf("repeat question must be served from cache, got %d calls", places.calls)
	}
}

func TestAnswerRequeryFailureIsNoData(t *testing.T) {
	places := &scriptedPlaces{err: &source.Unavailable{Provider: source.ProviderOverpass, Reason: "timeout"}}
	e := NewEngine(nil, places, nil)

	answer, limitations, _ := e.Answer(context.Background(), "bakery near me", chatSnapshot(), nil)
	if !strings.Contains(answer, "No bakery places were found") {
		t.Fatalf("failed re-query should read as no data: %q", answer)
	}
	found := false
	for _, l := range limitations {
		if strings.Contains(l, "live lookup") {
			found = true
		}
	}
	if !found {
		t.Fatalf("limitations should flag the failed lookup: %v", limitations)
	}
}

func TestAnswerNoDataCategory(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	answer, limitations, _ := e.Answer(context.Background(), "museums nearby?", chatSnapshot(), nil)
	if !strings.Contains(answer, "No museum places were found within 1200 m of La Latina.") {
		t.Fatalf("unexpected no-data answer %q", answer)
	}
	if len(limitations) == 0 {
		t.Fatalf("no-data answers should carry a limitation")
	}
}
