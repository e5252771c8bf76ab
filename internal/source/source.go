// Package source holds one adapter per upstream geodata provider. Every
// adapter translates its provider's wire format into the normalized record
// types below; provider field names never cross this package boundary.
// Any failure mode (network error, malformed payload, explicit provider
// outage) collapses into *Unavailable so callers treat all of them alike.
package source

import (
	"errors"
	"fmt"

	"geocontext/internal/geo"
)

// Provider identifiers. These are the only names the rest of the system
// knows upstream services by.
const (
	ProviderOverpass   = "overpass"
	ProviderNominatim  = "nominatim"
	ProviderFloodRisk  = "floodrisk"
	ProviderAirQuality = "airquality"
	ProviderLandCover  = "landcover"
	ProviderWikipedia  = "wikipedia"
	ProviderGeoapify   = "geoapify"
	ProviderWeather    = "weather"
)

// Unavailable is the single failure type adapters return. The reason text
// is for humans; callers must not branch on it.
type Unavailable struct {
	Provider string
	Reason   string
	Err      error
}

func (u *Unavailable) Error() string {
	if u.Err != nil {
		return fmt.Sprintf("source: %s unavailable: %s: %v", u.Provider, u.Reason, u.Err)
	}
	return fmt.Sprintf("source: %s unavailable: %s", u.Provider, u.Reason)
}

func (u *Unavailable) Unwrap() error { return u.Err }

// IsUnavailable reports whether err is (or wraps) an adapter failure.
func IsUnavailable(err error) bool {
	var u *Unavailable
	return errors.As(err, &u)
}

func unavailable(provider, reason string, err error) *Unavailable {
	return &Unavailable{Provider: provider, Reason: reason, Err: err}
}

// PlaceRecord is a raw place hit before fusion. RawKind carries the
// provider-specific type string ("amenity=restaurant", "catering.cafe", ...)
// that the fusion mapping tables translate into a closed category.
type PlaceRecord struct {
	Name       string
	Coordinate geo.Coordinate
	RawKind    string
	Provider   string

	// Optional attributes, merged across providers during fusion.
	Cuisine      string
	PriceLevel   string
	OpeningHours string
}

// PlaceInfo is the reverse-geocoder result for a query center.
type PlaceInfo struct {
	Name         string
	Address      string
	Municipality string
	Province     string
	Region       string
	Country      string
}

// RiskStatus describes how much of an official risk source can be trusted.
type RiskStatus string

const (
	RiskOK         RiskStatus = "OK"
	RiskDown       RiskStatus = "DOWN"
	RiskVisualOnly RiskStatus = "VISUAL_ONLY"
)

// RiskReport is the normalized output of the flood and air-quality services.
type RiskReport struct {
	Status   RiskStatus
	Level    string
	Details  string
	Evidence []string
}

// LandCoverRecord is a land-cover classification at a point. Absent (nil)
// when the classifier has no coverage there.
type LandCoverRecord struct {
	Code  string
	Label string
}

// WaterwayRecord is a named water feature near the query center.
type WaterwayRecord struct {
	Name           string
	Kind           string
	Coordinate     geo.Coordinate
	DistanceMeters float64
	Coastline      bool
}

// FactRecord is a short encyclopedic fact about the place.
type FactRecord struct {
	Title   string
	Summary string
}

// WeatherRecord is the current-conditions result.
type WeatherRecord struct {
	TemperatureC    float64
	WindSpeedKmh    float64
	PrecipitationMm float64
	Description     string
	ElevationM      *float64
}
