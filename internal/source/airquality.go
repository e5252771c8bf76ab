package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// AirQuality queries the official air-quality index service.
type AirQuality struct {
	BaseURL string
	client  httpDoer
}

func NewAirQuality(baseURL string, timeout time.Duration) *AirQuality {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://air-quality-api.open-meteo.com"
	}
	return &AirQuality{BaseURL: strings.TrimRight(baseURL, "/"), client: defaultClient(timeout)}
}

type airQualityResponse struct {
	Current struct {
		EuropeanAQI *float64 `json:"european_aqi"`
		PM25        *float64 `json:"pm2_5"`
		PM10        *float64 `json:"pm10"`
	} `json:"current"`
}

// aqiLabel maps the european AQI bands to their fixed labels.
func aqiLabel(aqi float64) string {
	switch {
	case aqi <= 20:
		return "good"
	case aqi <= 40:
		return "fair"
	case aqi <= 60:
		return "moderate"
	case aqi <= 80:
		return "poor"
	case aqi <= 100:
		return "very poor"
	default:
		return "extremely poor"
	}
}

// Assess returns the air-quality layer at center.
func (a *AirQuality) Assess(ctx context.Context, center geo.Coordinate) (*RiskReport, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", center.Lat))
	q.Set("longitude", fmt.Sprintf("%f", center.Lon))
	q.Set("current", "european_aqi,pm2_5,pm10")

	var resp airQualityResponse
	if err := getJSON(ctx, a.client, ProviderAirQuality, a.BaseURL+"/v1/air-quality?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Current.EuropeanAQI == nil {
		return &RiskReport{
			Status:  RiskVisualOnly,
			Details: "air-quality service has no index value for this point",
		}, nil
	}
	aqi := *resp.Current.EuropeanAQI
	rep := &RiskReport{
		Status:  RiskOK,
		Level:   aqiLabel(aqi),
		Details: fmt.Sprintf("european AQI %.0f (%s)", aqi, aqiLabel(aqi)),
	}
	if resp.Current.PM25 != nil {
		rep.Evidence = append(rep.Evidence, fmt.Sprintf("pm2_5=%.1f", *resp.Current.PM25))
	}
	if resp.Current.PM10 != nil {
		rep.Evidence = append(rep.Evidence, fmt.Sprintf("pm10=%.1f", *resp.Current.PM10))
	}
	return rep, nil
}
