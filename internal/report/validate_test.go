package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"geocontext/internal/fusion"
	"geocontext/internal/snapshot"
)

func validReport(snap *snapshot.ContextSnapshot) snapshot.Report {
	rep := Fallback(snap, "")
	rep.Limitations = []string{}
	return rep
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestValidateAcceptsGroundedReport(t *testing.T) {
	snap := populatedSnapshot()
	raw := mustJSON(t, validReport(snap))
	if _, err := Validate(raw, snap, nil); err != nil {
		t.Fatalf("grounded report rejected: %v", err)
	}
}

func TestValidateRejectsHallucinatedEntity(t *testing.T) {
	snap := populatedSnapshot()
	rep := validReport(snap)
	rep.NearbyHighlights[0].Name = "Restaurante Inventado"

	_, err := Validate(mustJSON(t, rep), snap, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsWrongCategory(t *testing.T) {
	snap := populatedSnapshot()
	rep := validReport(snap)
	// Casa Lucio exists, but as a restaurant.
	rep.NearbyHighlights[0] = snapshot.Highlight{Name: "Casa Lucio", Category: fusion.CategoryPharmacy, DistanceMeters: 120}

	if _, err := Validate(mustJSON(t, rep), snap, nil); err == nil {
		t.Fatalf("category mismatch must be rejected")
	}
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	snap := populatedSnapshot()
	rep := validReport(snap)
	rep.NearbyHighlights[0].Category = "speakeasy"

	if _, err := Validate(mustJSON(t, rep), snap, nil); err == nil {
		t.Fatalf("category outside the closed set must be rejected")
	}
}

func TestValidateInsufficientDataConsistency(t *testing.T) {
	snap := populatedSnapshot()

	rep := validReport(snap)
	rep.InsufficientData = true // but highlights are non-empty
	if _, err := Validate(mustJSON(t, rep), snap, nil); err == nil {
		t.Fatalf("insufficient_data with highlights must be rejected")
	}

	empty := emptySnapshot()
	rep = validReport(empty)
	rep.InsufficientData = false // but no highlights exist
	if _, err := Validate(mustJSON(t, rep), empty, nil); err == nil {
		t.Fatalf("no highlights without insufficient_data must be rejected")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	snap := populatedSnapshot()
	for _, mutate := range []func(*snapshot.Report){
		func(r *snapshot.Report) { r.Summary = "" },
		func(r *snapshot.Report) { r.Recommendation = " " },
		func(r *snapshot.Report) { r.LandUse = "" },
		func(r *snapshot.Report) { r.Risks.Flood = "" },
		func(r *snapshot.Report) { r.Risks.AirQuality = "" },
	} {
		rep := validReport(snap)
		mutate(&rep)
		if _, err := Validate(mustJSON(t, rep), snap, nil); err == nil {
			t.Fatalf("report with a blanked required field must be rejected")
		}
	}
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	snap := populatedSnapshot()
	raw := json.RawMessage(`{"summary":"s","confidence":0.9}`)
	if _, err := Validate(raw, snap, nil); err == nil {
		t.Fatalf("unknown field must be rejected")
	}
}

func TestValidateAcceptsToolSurfacedEntities(t *testing.T) {
	snap := populatedSnapshot()
	extra := []fusion.POI{{Name: "Horno de San Onofre", Category: fusion.CategoryBakery, DistanceMeters: 210}}
	rep := validReport(snap)
	rep.NearbyHighlights = append(rep.NearbyHighlights,
		snapshot.Highlight{Name: "Horno de San Onofre", Category: fusion.CategoryBakery, DistanceMeters: 210})

	if _, err := Validate(mustJSON(t, rep), snap, extra); err != nil {
		t.Fatalf("tool-surfaced entity rejected: %v", err)
	}
	if _, err := Validate(mustJSON(t, rep), snap, nil); err == nil {
		t.Fatalf("without the tool whitelist the same entity must be rejected")
	}
}

func TestValidateNameMatchingIsWhitespaceAndCaseInsensitive(t *testing.T) {
	snap := populatedSnapshot()
	rep := validReport(snap)
	rep.NearbyHighlights[0].Name = "  casa   LUCIO "
	rep.NearbyHighlights[0].Category = fusion.CategoryRestaurant

	if _, err := Validate(mustJSON(t, rep), snap, nil); err != nil {
		t.Fatalf("normalized name should match: %v", err)
	}
}

// Random names never present in the snapshot must always be rejected,
// regardless of the rest of the report being well-formed.
func TestValidateNoHallucinationProperty(t *testing.T) {
	snap := populatedSnapshot()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("Fake Place %d-%d", i, rng.Intn(1_000_000))
		rep := validReport(snap)
		rep.NearbyHighlights[rng.Intn(len(rep.NearbyHighlights))].Name = name
		if _, err := Validate(mustJSON(t, rep), snap, nil); err == nil {
			t.Fatalf("hallucinated %q slipped through", name)
		}
	}
}
