package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// Geoapify is the alternate places index. It participates in fusion with
// lower priority than the primary index and also contributes the land-use
// surrogate summary when the official land-cover classifier has no data.
type Geoapify struct {
	BaseURL string
	APIKey  string
	client  httpDoer
}

func NewGeoapify(baseURL, apiKey string, timeout time.Duration) *Geoapify {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.geoapify.com"
	}
	return &Geoapify{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, client: defaultClient(timeout)}
}

const geoapifyCategories = "catering,commercial,healthcare,education,accommodation,entertainment,tourism,public_transport"

type geoapifyResponse struct {
	Features []struct {
		Properties struct {
			Name       string   `json:"name"`
			Lat        float64  `json:"lat"`
			Lon        float64  `json:"lon"`
			Categories []string `json:"categories"`
		} `json:"properties"`
	} `json:"features"`
}

// Search returns raw place records around center from the alternate index.
func (g *Geoapify) Search(ctx context.Context, center geo.Coordinate, radiusMeters int) ([]PlaceRecord, error) {
	if strings.TrimSpace(g.APIKey) == "" {
		return nil, unavailable(ProviderGeoapify, "not configured", nil)
	}
	q := url.Values{}
	q.Set("categories", geoapifyCategories)
	q.Set("filter", fmt.Sprintf("circle:%f,%f,%d", center.Lon, center.Lat, radiusMeters))
	q.Set("limit", "100")
	q.Set("apiKey", g.APIKey)

	var resp geoapifyResponse
	if err := getJSON(ctx, g.client, ProviderGeoapify, g.BaseURL+"/v2/places?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]PlaceRecord, 0, len(resp.Features))
	for _, f := range resp.Features {
		kind := ""
		if len(f.Properties.Categories) > 0 {
			// The most specific category is listed last.
			kind = f.Properties.Categories[len(f.Properties.Categories)-1]
		}
		out = append(out, PlaceRecord{
			Name:       f.Properties.Name,
			Coordinate: geo.Coordinate{Lat: f.Properties.Lat, Lon: f.Properties.Lon},
			RawKind:    kind,
			Provider:   ProviderGeoapify,
		})
	}
	return out, nil
}
