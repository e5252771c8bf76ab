package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// FloodRisk queries the official flood-hazard service. The service can be
// fully up (numeric hazard level), degraded to map-tiles-only, or down;
// all three surface as a RiskReport so the builder can apply its
// degradation rules uniformly.
type FloodRisk struct {
	BaseURL string
	APIKey  string
	client  httpDoer
}

func NewFloodRisk(baseURL, apiKey string, timeout time.Duration) *FloodRisk {
	return &FloodRisk{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, client: defaultClient(timeout)}
}

type floodResponse struct {
	Status     string   `json:"status"`
	HazardCode string   `json:"hazard_code"`
	HazardText string   `json:"hazard_text"`
	Layers     []string `json:"layers"`
	Message    string   `json:"message"`
}

// Assess returns the flood-risk layer at center. A reachable service that
// reports itself degraded still yields a report (VISUAL_ONLY or DOWN);
// only transport-level failures return an error.
func (f *FloodRisk) Assess(ctx context.Context, center geo.Coordinate) (*RiskReport, error) {
	if strings.TrimSpace(f.BaseURL) == "" {
		return nil, unavailable(ProviderFloodRisk, "not configured", nil)
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", center.Lat))
	q.Set("lon", fmt.Sprintf("%f", center.Lon))
	if f.APIKey != "" {
		q.Set("key", f.APIKey)
	}

	var resp floodResponse
	if err := getJSON(ctx, f.client, ProviderFloodRisk, f.BaseURL+"/hazard/flood?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "ok":
		level := firstNonEmpty(resp.HazardText, resp.HazardCode)
		if level == "" {
			// Service answered but has nothing for this point.
			return &RiskReport{
				Status:  RiskVisualOnly,
				Details: "official flood service returned no hazard value for this point",
				Evidence: resp.Layers,
			}, nil
		}
		return &RiskReport{
			Status:   RiskOK,
			Level:    level,
			Details:  firstNonEmpty(resp.Message, "official flood hazard level "+level),
			Evidence: resp.Layers,
		}, nil
	case "visual_only", "tiles_only":
		return &RiskReport{
			Status:   RiskVisualOnly,
			Details:  firstNonEmpty(resp.Message, "flood layers available for display only"),
			Evidence: resp.Layers,
		}, nil
	default:
		return &RiskReport{
			Status:  RiskDown,
			Details: firstNonEmpty(resp.Message, "official flood service reported unavailable"),
		}, nil
	}
}
