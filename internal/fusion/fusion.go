// Package fusion classifies raw place records into a closed category set,
// de-duplicates hits arriving from multiple providers for the same physical
// point, and produces distance-sorted category buckets with summary counts.
package fusion

import (
	"sort"
	"strings"

	"geocontext/internal/geo"
	"geocontext/internal/source"
)

// Category is the closed POI classification. Records whose provider kind
// maps to none of these are dropped, never defaulted.
type Category string

const (
	CategoryRestaurant  Category = "restaurant"
	CategoryFastFood    Category = "fast_food"
	CategoryBar         Category = "bar"
	CategoryClub        Category = "club"
	CategoryCafe        Category = "cafe"
	CategoryBakery      Category = "bakery"
	CategoryPharmacy    Category = "pharmacy"
	CategoryHospital    Category = "hospital"
	CategorySchool      Category = "school"
	CategorySupermarket Category = "supermarket"
	CategoryTransport   Category = "transport"
	CategoryHotel       Category = "hotel"
	CategoryAttraction  Category = "attraction"
	CategoryMuseum      Category = "museum"
	CategoryViewpoint   Category = "viewpoint"
	CategoryPark        Category = "park"
	CategoryBank        Category = "bank"
)

// Categories lists every category in a fixed, stable order.
var Categories = []Category{
	CategoryRestaurant, CategoryFastFood, CategoryBar, CategoryClub,
	CategoryCafe, CategoryBakery, CategoryPharmacy, CategoryHospital,
	CategorySchool, CategorySupermarket, CategoryTransport, CategoryHotel,
	CategoryAttraction, CategoryMuseum, CategoryViewpoint, CategoryPark,
	CategoryBank,
}

// dedupeToleranceMeters is the coordinate proximity within which two
// same-named records from different providers count as one physical place.
const dedupeToleranceMeters = 30

// osmKinds maps "key=value" tag pairs from the primary places index.
var osmKinds = map[string]Category{
	"amenity=restaurant":       CategoryRestaurant,
	"amenity=fast_food":        CategoryFastFood,
	"amenity=bar":              CategoryBar,
	"amenity=pub":              CategoryBar,
	"amenity=nightclub":        CategoryClub,
	"amenity=cafe":             CategoryCafe,
	"shop=bakery":              CategoryBakery,
	"amenity=pharmacy":         CategoryPharmacy,
	"amenity=hospital":         CategoryHospital,
	"amenity=clinic":           CategoryHospital,
	"amenity=school":           CategorySchool,
	"amenity=college":          CategorySchool,
	"amenity=university":       CategorySchool,
	"shop=supermarket":         CategorySupermarket,
	"shop=convenience":         CategorySupermarket,
	"railway=station":          CategoryTransport,
	"public_transport=station": CategoryTransport,
	"highway=bus_stop":         CategoryTransport,
	"tourism=hotel":            CategoryHotel,
	"tourism=hostel":           CategoryHotel,
	"tourism=guest_house":      CategoryHotel,
	"tourism=attraction":       CategoryAttraction,
	"tourism=museum":           CategoryMuseum,
	"tourism=viewpoint":        CategoryViewpoint,
	"leisure=park":             CategoryPark,
	"amenity=bank":             CategoryBank,
}

// geoapifyKinds maps the alternate index's dotted category paths.
var geoapifyKinds = map[string]Category{
	"catering.restaurant":               CategoryRestaurant,
	"catering.fast_food":                CategoryFastFood,
	"catering.bar":                      CategoryBar,
	"catering.pub":                      CategoryBar,
	"adult.nightclub":                   CategoryClub,
	"catering.cafe":                     CategoryCafe,
	"commercial.food_and_drink.bakery":  CategoryBakery,
	"healthcare.pharmacy":               CategoryPharmacy,
	"healthcare.hospital":               CategoryHospital,
	"education.school":                  CategorySchool,
	"commercial.supermarket":            CategorySupermarket,
	"public_transport.train":            CategoryTransport,
	"public_transport.subway":           CategoryTransport,
	"public_transport.bus":              CategoryTransport,
	"accommodation.hotel":               CategoryHotel,
	"tourism.attraction":                CategoryAttraction,
	"entertainment.museum":              CategoryMuseum,
	"tourism.sights.viewpoint":          CategoryViewpoint,
	"leisure.park":                      CategoryPark,
	"commercial.bank":                   CategoryBank,
	"service.financial.bank":            CategoryBank,
}

// Classify maps a provider-specific kind string to a category.
// ok is false for unmapped kinds; those records are dropped.
func Classify(provider, rawKind string) (Category, bool) {
	switch provider {
	case source.ProviderGeoapify:
		c, ok := geoapifyKinds[rawKind]
		return c, ok
	default:
		c, ok := osmKinds[rawKind]
		return c, ok
	}
}

// POI is a fused point of interest. DistanceMeters is always recomputed
// from the coordinate and the query center, never taken from a provider.
type POI struct {
	Name           string         `json:"name"`
	Coordinate     geo.Coordinate `json:"coordinate"`
	DistanceMeters float64        `json:"distance_meters"`
	Category       Category       `json:"category"`
	SourceProvider string         `json:"source_provider"`

	Cuisine      string `json:"cuisine,omitempty"`
	PriceLevel   string `json:"price_level,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
}

// Summary carries per-category counts and the overall total.
type Summary struct {
	Counts map[Category]int `json:"counts"`
	Total  int              `json:"total"`
}

// Fuse merges raw record lists into category buckets. The order of inputs
// is the de-duplication priority: when two providers report the same
// physical place, the record from the earlier list wins, but optional
// attributes absent on the winner are merged from the loser.
func Fuse(center geo.Coordinate, radiusMeters int, inputs ...[]source.PlaceRecord) (map[Category][]POI, Summary) {
	byCategory := make(map[Category][]POI)
	for _, records := range inputs {
		for _, rec := range records {
			name := strings.TrimSpace(rec.Name)
			if name == "" {
				continue
			}
			cat, ok := Classify(rec.Provider, rec.RawKind)
			if !ok {
				continue
			}
			dist := geo.Haversine(center, rec.Coordinate)
			if dist > float64(radiusMeters) {
				continue
			}
			poi := POI{
				Name:           name,
				Coordinate:     rec.Coordinate,
				DistanceMeters: dist,
				Category:       cat,
				SourceProvider: rec.Provider,
				Cuisine:        rec.Cuisine,
				PriceLevel:     rec.PriceLevel,
				OpeningHours:   rec.OpeningHours,
			}
			if idx, dup := findDuplicate(byCategory[cat], poi); dup {
				mergeAttributes(&byCategory[cat][idx], poi)
				continue
			}
			byCategory[cat] = append(byCategory[cat], poi)
		}
	}

	summary := Summary{Counts: make(map[Category]int)}
	for cat, bucket := range byCategory {
		// Stable: equal distances keep provider-priority order.
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].DistanceMeters < bucket[j].DistanceMeters
		})
		byCategory[cat] = bucket
		summary.Counts[cat] = len(bucket)
		summary.Total += len(bucket)
	}
	return byCategory, summary
}

func findDuplicate(bucket []POI, candidate POI) (int, bool) {
	cname := normalizeName(candidate.Name)
	for i, existing := range bucket {
		if normalizeName(existing.Name) == cname &&
			geo.SameSpot(existing.Coordinate, candidate.Coordinate, dedupeToleranceMeters) {
			return i, true
		}
	}
	return 0, false
}

// mergeAttributes fills optional attributes missing on the winner from a
// lower-priority duplicate. Identity fields never change.
func mergeAttributes(winner *POI, loser POI) {
	if winner.Cuisine == "" {
		winner.Cuisine = loser.Cuisine
	}
	if winner.PriceLevel == "" {
		winner.PriceLevel = loser.PriceLevel
	}
	if winner.OpeningHours == "" {
		winner.OpeningHours = loser.OpeningHours
	}
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
