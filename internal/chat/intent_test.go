package chat

import (
	"testing"

	"geocontext/internal/fusion"
)

func TestKeywordOrdering(t *testing.T) {
	m := NewKeywords()
	cases := []struct {
		question string
		wantName string
		wantCat  fusion.Category
	}{
		// The bakery rule must win before the generic restaurant rule.
		{"¿hay panaderías cerca?", "bakery", fusion.CategoryBakery},
		{"best bakery around here", "bakery", fusion.CategoryBakery},
		// Tapas is more specific than restaurant and sits above it.
		{"¿dónde comer tapas en un restaurante?", "tapas", fusion.CategoryRestaurant},
		{"quiero cenar en un restaurante", "restaurant", fusion.CategoryRestaurant},
		{"farmacia de guardia", "pharmacy", fusion.CategoryPharmacy},
		{"where can I catch the metro", "transport", fusion.CategoryTransport},
		{"is there a park nearby", "park", fusion.CategoryPark},
	}
	for _, tc := range cases {
		got := m.Match(tc.question)
		if got.Name != tc.wantName || got.Category != tc.wantCat {
			t.Fatalf("%q => %s/%s, want %s/%s", tc.question, got.Name, got.Category, tc.wantName, tc.wantCat)
		}
	}
}

func TestKeywordDefaultIntent(t *testing.T) {
	m := NewKeywords()
	got := m.Match("¿qué tal es la zona en general?")
	if got.Name != IntentInfrastructure {
		t.Fatalf("unmatched question should default to %s, got %s", IntentInfrastructure, got.Name)
	}
}

func TestBakeryIntentCarriesRequery(t *testing.T) {
	m := NewKeywords()
	got := m.Match("panadería abierta ahora")
	if !got.Requery {
		t.Fatalf("bakery questions need the live re-query")
	}
	if len(got.Selectors) == 0 {
		t.Fatalf("re-query intents must carry tag selectors")
	}
}
