package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// Wikipedia is the encyclopedic knowledge base: a geosearch around the
// center followed by intro extracts for the top pages.
type Wikipedia struct {
	BaseURL  string
	MaxFacts int
	client   httpDoer
}

func NewWikipedia(baseURL string, timeout time.Duration) *Wikipedia {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://en.wikipedia.org/w/api.php"
	}
	return &Wikipedia{BaseURL: baseURL, MaxFacts: 3, client: defaultClient(timeout)}
}

type wikiGeoResponse struct {
	Query struct {
		GeoSearch []struct {
			PageID int64  `json:"pageid"`
			Title  string `json:"title"`
		} `json:"geosearch"`
	} `json:"query"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Facts returns short encyclopedic summaries for pages near center.
func (w *Wikipedia) Facts(ctx context.Context, center geo.Coordinate, radiusMeters int) ([]FactRecord, error) {
	max := w.MaxFacts
	if max <= 0 {
		max = 3
	}
	if radiusMeters > 10000 {
		radiusMeters = 10000 // geosearch upper bound
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "geosearch")
	q.Set("gscoord", fmt.Sprintf("%f|%f", center.Lat, center.Lon))
	q.Set("gsradius", fmt.Sprintf("%d", radiusMeters))
	q.Set("gslimit", fmt.Sprintf("%d", max))
	q.Set("format", "json")

	var geoResp wikiGeoResponse
	if err := getJSON(ctx, w.client, ProviderWikipedia, w.BaseURL+"?"+q.Encode(), &geoResp); err != nil {
		return nil, err
	}
	if len(geoResp.Query.GeoSearch) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(geoResp.Query.GeoSearch))
	for _, hit := range geoResp.Query.GeoSearch {
		ids = append(ids, fmt.Sprintf("%d", hit.PageID))
	}
	q = url.Values{}
	q.Set("action", "query")
	q.Set("prop", "extracts")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")
	q.Set("exsentences", "2")
	q.Set("pageids", strings.Join(ids, "|"))
	q.Set("format", "json")

	var exResp wikiExtractResponse
	if err := getJSON(ctx, w.client, ProviderWikipedia, w.BaseURL+"?"+q.Encode(), &exResp); err != nil {
		return nil, err
	}

	// Preserve geosearch (nearest-first) order.
	out := make([]FactRecord, 0, len(ids))
	for _, hit := range geoResp.Query.GeoSearch {
		page, ok := exResp.Query.Pages[fmt.Sprintf("%d", hit.PageID)]
		if !ok || strings.TrimSpace(page.Extract) == "" {
			continue
		}
		out = append(out, FactRecord{Title: page.Title, Summary: strings.TrimSpace(page.Extract)})
	}
	return out, nil
}
