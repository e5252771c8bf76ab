package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// LandCover queries the land-cover classifier. Points outside the
// classifier's coverage yield (nil, nil): absence, not failure.
type LandCover struct {
	BaseURL string
	client  httpDoer
}

func NewLandCover(baseURL string, timeout time.Duration) *LandCover {
	return &LandCover{BaseURL: strings.TrimRight(baseURL, "/"), client: defaultClient(timeout)}
}

// corineLabels maps level-1/2 CORINE-style class codes to labels. Unknown
// codes keep the provider label verbatim.
var corineLabels = map[string]string{
	"1":   "artificial surfaces",
	"11":  "urban fabric",
	"111": "continuous urban fabric",
	"112": "discontinuous urban fabric",
	"12":  "industrial or commercial units",
	"14":  "green urban areas",
	"2":   "agricultural areas",
	"21":  "arable land",
	"22":  "permanent crops",
	"3":   "forest and semi-natural areas",
	"31":  "forests",
	"32":  "shrub or herbaceous vegetation",
	"4":   "wetlands",
	"5":   "water bodies",
}

type landCoverResponse struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Classify returns the land-cover record at center, or nil when the
// classifier has no coverage for the point.
func (l *LandCover) Classify(ctx context.Context, center geo.Coordinate) (*LandCoverRecord, error) {
	if strings.TrimSpace(l.BaseURL) == "" {
		return nil, unavailable(ProviderLandCover, "not configured", nil)
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", center.Lat))
	q.Set("lon", fmt.Sprintf("%f", center.Lon))

	var resp landCoverResponse
	if err := getJSON(ctx, l.client, ProviderLandCover, l.BaseURL+"/classify?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(resp.Code)
	if code == "" {
		return nil, nil // no coverage at this point
	}
	label := strings.TrimSpace(resp.Label)
	if label == "" {
		label = corineLabels[code]
	}
	if label == "" {
		label = "unclassified"
	}
	return &LandCoverRecord{Code: code, Label: label}, nil
}
