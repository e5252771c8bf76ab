package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// Weather returns current conditions (plus the model elevation, which the
// snapshot surfaces as the point elevation).
type Weather struct {
	BaseURL string
	client  httpDoer
}

func NewWeather(baseURL string, timeout time.Duration) *Weather {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.open-meteo.com"
	}
	return &Weather{BaseURL: strings.TrimRight(baseURL, "/"), client: defaultClient(timeout)}
}

type weatherResponse struct {
	Elevation *float64 `json:"elevation"`
	Current   struct {
		Temperature   *float64 `json:"temperature_2m"`
		WindSpeed     *float64 `json:"wind_speed_10m"`
		Precipitation *float64 `json:"precipitation"`
		WeatherCode   *int     `json:"weather_code"`
	} `json:"current"`
}

// weatherCodeText maps WMO weather codes to short descriptions.
func weatherCodeText(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}

// Current returns the current conditions at center.
func (w *Weather) Current(ctx context.Context, center geo.Coordinate) (*WeatherRecord, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", center.Lat))
	q.Set("longitude", fmt.Sprintf("%f", center.Lon))
	q.Set("current", "temperature_2m,wind_speed_10m,precipitation,weather_code")

	var resp weatherResponse
	if err := getJSON(ctx, w.client, ProviderWeather, w.BaseURL+"/v1/forecast?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Current.Temperature == nil {
		return nil, unavailable(ProviderWeather, "empty result", nil)
	}
	rec := &WeatherRecord{
		TemperatureC: *resp.Current.Temperature,
		ElevationM:   resp.Elevation,
	}
	if resp.Current.WindSpeed != nil {
		rec.WindSpeedKmh = *resp.Current.WindSpeed
	}
	if resp.Current.Precipitation != nil {
		rec.PrecipitationMm = *resp.Current.Precipitation
	}
	if resp.Current.WeatherCode != nil {
		rec.Description = weatherCodeText(*resp.Current.WeatherCode)
	}
	return rec, nil
}
