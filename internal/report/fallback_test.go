package report

import (
	"reflect"
	"strings"
	"testing"

	"geocontext/internal/fusion"
	"geocontext/internal/geo"
	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

func poi(name string, cat fusion.Category, dist float64) fusion.POI {
	return fusion.POI{Name: name, Category: cat, DistanceMeters: dist, SourceProvider: source.ProviderOverpass}
}

func populatedSnapshot() *snapshot.ContextSnapshot {
	snap := &snapshot.ContextSnapshot{
		Center:       geo.Coordinate{Lat: 40.4168, Lon: -3.7038},
		RadiusMeters: 1200,
		Place:        snapshot.Place{Name: "La Latina", Municipality: "Madrid"},
		POIsByCategory: map[fusion.Category][]fusion.POI{
			fusion.CategoryRestaurant: {poi("Casa Lucio", fusion.CategoryRestaurant, 120), poi("Taberna Dos", fusion.CategoryRestaurant, 340)},
			fusion.CategoryPharmacy:   {poi("Farmacia Mayor", fusion.CategoryPharmacy, 80)},
			fusion.CategoryPark:       {poi("El Retiro", fusion.CategoryPark, 450)},
		},
		FloodRisk: snapshot.RiskLayer{
			OK: true, Status: source.RiskOK, Source: "floodrisk", Level: "low",
		},
		AirQuality: snapshot.RiskLayer{
			OK: true, Status: source.RiskOK, Source: "airquality", Level: "good",
		},
	}
	snap.POISummary = fusion.Summary{
		Counts: map[fusion.Category]int{
			fusion.CategoryRestaurant: 2,
			fusion.CategoryPharmacy:   1,
			fusion.CategoryPark:       1,
		},
		Total: 4,
	}
	snap.SourcesUsed = snapshot.SourcesUsed{
		Places: true, ReverseGeocode: true, FloodRisk: true,
		AirQuality: true, LandCover: true, Facts: true,
		AltPlaces: true, Weather: true,
	}
	snap.Environment.LandUseSummary = "Dense urban fabric dominates the surroundings."
	return snap
}

func emptySnapshot() *snapshot.ContextSnapshot {
	return &snapshot.ContextSnapshot{
		Center:       geo.Coordinate{Lat: 40.4168, Lon: -3.7038},
		RadiusMeters: 1200,
		Place:        snapshot.Place{Name: "point 40.4168, -3.7038"},
		FloodRisk:    snapshot.RiskLayer{OK: false, Status: source.RiskDown, Source: "floodrisk"},
		AirQuality:   snapshot.RiskLayer{OK: false, Status: source.RiskDown, Source: "airquality"},
		POIsByCategory: map[fusion.Category][]fusion.POI{},
		POISummary:     fusion.Summary{Counts: map[fusion.Category]int{}},
	}
}

func TestFallbackEmptySnapshot(t *testing.T) {
	rep := Fallback(emptySnapshot(), "generative backend not configured")

	if !rep.InsufficientData {
		t.Fatalf("empty snapshot must set insufficient_data")
	}
	if len(rep.NearbyHighlights) != 0 {
		t.Fatalf("no highlights expected, got %d", len(rep.NearbyHighlights))
	}
	if !strings.Contains(rep.Summary, "No mapped points of interest") {
		t.Fatalf("unexpected summary %q", rep.Summary)
	}
	if !strings.Contains(rep.Recommendation, "Not enough nearby data") {
		t.Fatalf("unexpected recommendation %q", rep.Recommendation)
	}
	joined := strings.Join(rep.Limitations, " ")
	for _, want := range []string{"points of interest", "flood-risk", "Air-quality", "land-cover", "encyclopedic", "weather"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("limitations missing axis %q: %v", want, rep.Limitations)
		}
	}
	if len(rep.Sources) != 0 {
		t.Fatalf("no sources were used, got %v", rep.Sources)
	}
}

func TestFallbackEmptyRadiusWithLiveSources(t *testing.T) {
	// Both place indices answered, they just had nothing in the radius.
	snap := populatedSnapshot()
	snap.POIsByCategory = map[fusion.Category][]fusion.POI{}
	snap.POISummary = fusion.Summary{Counts: map[fusion.Category]int{}}

	rep := Fallback(snap, "generative backend not configured")
	if !rep.InsufficientData {
		t.Fatalf("zero POIs must set insufficient_data")
	}
	found := false
	for _, l := range rep.Limitations {
		if strings.Contains(l, "no mapped points of interest") {
			found = true
		}
	}
	if !found {
		t.Fatalf("limitations must flag the empty POI axis even with live sources: %v", rep.Limitations)
	}
}

func TestFallbackHighlightsNearestFirst(t *testing.T) {
	rep := Fallback(populatedSnapshot(), "")

	if rep.InsufficientData {
		t.Fatalf("populated snapshot must not be insufficient")
	}
	wantOrder := []string{"Farmacia Mayor", "Casa Lucio", "Taberna Dos", "El Retiro"}
	if len(rep.NearbyHighlights) != len(wantOrder) {
		t.Fatalf("got %d highlights, want %d", len(rep.NearbyHighlights), len(wantOrder))
	}
	for i, want := range wantOrder {
		if rep.NearbyHighlights[i].Name != want {
			t.Fatalf("highlight %d = %q, want %q", i, rep.NearbyHighlights[i].Name, want)
		}
	}
	if !strings.Contains(rep.Recommendation, "Farmacia Mayor") {
		t.Fatalf("recommendation should lead with the nearest place: %q", rep.Recommendation)
	}
	if !strings.Contains(rep.Summary, "low density") {
		t.Fatalf("4 POIs should read as low density: %q", rep.Summary)
	}
}

func TestFallbackDistanceTieBreaksByCategoryThenName(t *testing.T) {
	snap := populatedSnapshot()
	snap.POIsByCategory = map[fusion.Category][]fusion.POI{
		fusion.CategoryCafe: {poi("Cafe Uno", fusion.CategoryCafe, 100)},
		fusion.CategoryBar:  {poi("Bar Zeta", fusion.CategoryBar, 100), poi("Bar Alfa", fusion.CategoryBar, 100)},
	}
	snap.POISummary = fusion.Summary{Counts: map[fusion.Category]int{fusion.CategoryCafe: 1, fusion.CategoryBar: 2}, Total: 3}

	rep := Fallback(snap, "")
	got := []string{rep.NearbyHighlights[0].Name, rep.NearbyHighlights[1].Name, rep.NearbyHighlights[2].Name}
	want := []string{"Bar Alfa", "Bar Zeta", "Cafe Uno"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tie order = %v, want %v", got, want)
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	snap := populatedSnapshot()
	a := Fallback(snap, "round budget exhausted")
	b := Fallback(snap, "round budget exhausted")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("fallback must be pure; runs differ:\n%+v\n%+v", a, b)
	}
}

func TestFallbackRiskSentences(t *testing.T) {
	snap := populatedSnapshot()
	snap.FloodRisk = snapshot.RiskLayer{
		OK: true, Status: source.RiskVisualOnly, Source: "floodrisk",
		Details: "Hazard map tiles are published for this zone.",
	}
	snap.AirQuality = snapshot.RiskLayer{OK: false, Status: source.RiskDown, Source: "airquality"}

	rep := Fallback(snap, "")
	if !strings.Contains(rep.Risks.Flood, "no numeric assessment") {
		t.Fatalf("visual-only flood sentence wrong: %q", rep.Risks.Flood)
	}
	if !strings.Contains(rep.Risks.Flood, "Hazard map tiles") {
		t.Fatalf("details should carry through: %q", rep.Risks.Flood)
	}
	if !strings.Contains(rep.Risks.AirQuality, "unavailable") {
		t.Fatalf("down air sentence wrong: %q", rep.Risks.AirQuality)
	}
}
