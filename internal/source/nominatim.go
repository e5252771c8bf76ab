package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/geo"
)

// Nominatim is the reverse geocoder.
type Nominatim struct {
	BaseURL string
	client  httpDoer
}

func NewNominatim(baseURL string, timeout time.Duration) *Nominatim {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Nominatim{BaseURL: strings.TrimRight(baseURL, "/"), client: defaultClient(timeout)}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Address     struct {
		Road         string `json:"road"`
		Suburb       string `json:"suburb"`
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		Province     string `json:"province"`
		State        string `json:"state"`
		Country      string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// Lookup resolves the place name and admin hierarchy at center.
func (n *Nominatim) Lookup(ctx context.Context, center geo.Coordinate) (*PlaceInfo, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", center.Lat))
	q.Set("lon", fmt.Sprintf("%f", center.Lon))
	q.Set("format", "jsonv2")
	q.Set("zoom", "16")

	var resp nominatimResponse
	if err := getJSON(ctx, n.client, ProviderNominatim, n.BaseURL+"/reverse?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, unavailable(ProviderNominatim, resp.Error, nil)
	}

	municipality := firstNonEmpty(resp.Address.City, resp.Address.Town, resp.Address.Village, resp.Address.Municipality)
	name := firstNonEmpty(resp.Name, resp.Address.Suburb, municipality)
	if name == "" && resp.DisplayName == "" {
		return nil, unavailable(ProviderNominatim, "empty result", nil)
	}
	return &PlaceInfo{
		Name:         firstNonEmpty(name, resp.DisplayName),
		Address:      resp.DisplayName,
		Municipality: municipality,
		Province:     firstNonEmpty(resp.Address.Province, resp.Address.State),
		Region:       resp.Address.State,
		Country:      resp.Address.Country,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
