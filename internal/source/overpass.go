package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// Overpass is the primary places index. It also serves the waterway lookup
// used by the flood proxy rule and the isCoastal determination.
type Overpass struct {
	BaseURL string
	client  httpDoer
}

func NewOverpass(baseURL string, timeout time.Duration) *Overpass {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://overpass-api.de/api/interpreter"
	}
	return &Overpass{BaseURL: baseURL, client: defaultClient(timeout)}
}

// DefaultPOISelectors covers the tag keys the fusion engine knows how to map.
var DefaultPOISelectors = []string{
	`"amenity"`,
	`"shop"`,
	`"tourism"`,
	`"leisure"="park"`,
	`"public_transport"="station"`,
	`"railway"="station"`,
	`"highway"="bus_stop"`,
}

type overpassResponse struct {
	Elements []struct {
		Type   string            `json:"type"`
		Lat    float64           `json:"lat"`
		Lon    float64           `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// Search returns raw place records around center. selectors are Overpass
// tag filters (already quoted, e.g. `"shop"="bakery"`); when empty the
// default POI selector set is used.
func (o *Overpass) Search(ctx context.Context, center geo.Coordinate, radiusMeters int, selectors []string) ([]PlaceRecord, error) {
	if len(selectors) == 0 {
		selectors = DefaultPOISelectors
	}
	var b strings.Builder
	b.WriteString("[out:json][timeout:6];(")
	for _, sel := range selectors {
		fmt.Fprintf(&b, "node[%s](around:%d,%f,%f);", sel, radiusMeters, center.Lat, center.Lon)
		fmt.Fprintf(&b, "way[%s](around:%d,%f,%f);", sel, radiusMeters, center.Lat, center.Lon)
	}
	b.WriteString(");out center tags;")

	var resp overpassResponse
	form := url.Values{"data": {b.String()}}
	if err := postForm(ctx, o.client, ProviderOverpass, o.BaseURL, form, &resp); err != nil {
		return nil, err
	}

	out := make([]PlaceRecord, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		lat, lon := el.Lat, el.Lon
		if el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		rec := PlaceRecord{
			Name:         el.Tags["name"],
			Coordinate:   geo.Coordinate{Lat: lat, Lon: lon},
			RawKind:      rawKindFromTags(el.Tags),
			Provider:     ProviderOverpass,
			Cuisine:      el.Tags["cuisine"],
			OpeningHours: el.Tags["opening_hours"],
		}
		out = append(out, rec)
	}
	return out, nil
}

// rawKindFromTags picks the most specific known tag key as the raw kind.
func rawKindFromTags(tags map[string]string) string {
	for _, key := range []string{"amenity", "shop", "tourism", "leisure", "railway", "public_transport", "highway"} {
		if v, ok := tags[key]; ok && v != "" {
			return key + "=" + v
		}
	}
	return ""
}

// Waterways returns named water features around center, nearest first,
// with distances computed from the query center.
func (o *Overpass) Waterways(ctx context.Context, center geo.Coordinate, radiusMeters int) ([]WaterwayRecord, error) {
	var b strings.Builder
	b.WriteString("[out:json][timeout:6];(")
	fmt.Fprintf(&b, `way["waterway"](around:%d,%f,%f);`, radiusMeters, center.Lat, center.Lon)
	fmt.Fprintf(&b, `way["natural"="water"](around:%d,%f,%f);`, radiusMeters, center.Lat, center.Lon)
	fmt.Fprintf(&b, `way["natural"="coastline"](around:%d,%f,%f);`, radiusMeters, center.Lat, center.Lon)
	b.WriteString(");out center tags;")

	var resp overpassResponse
	form := url.Values{"data": {b.String()}}
	if err := postForm(ctx, o.client, ProviderOverpass, o.BaseURL, form, &resp); err != nil {
		return nil, err
	}

	out := make([]WaterwayRecord, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		lat, lon := el.Lat, el.Lon
		if el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		kind := el.Tags["waterway"]
		coastline := el.Tags["natural"] == "coastline"
		if kind == "" {
			kind = el.Tags["natural"]
		}
		c := geo.Coordinate{Lat: lat, Lon: lon}
		out = append(out, WaterwayRecord{
			Name:           el.Tags["name"],
			Kind:           kind,
			Coordinate:     c,
			DistanceMeters: geo.Haversine(center, c),
			Coastline:      coastline,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}
