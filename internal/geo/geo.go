package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371008.8

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate is inside the WGS84 domain.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return fmt.Errorf("geo: coordinate contains NaN")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("geo: latitude %v out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("geo: longitude %v out of range [-180, 180]", c.Lon)
	}
	return nil
}

// Haversine returns the great-circle distance between two coordinates in meters.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRadius reports whether p lies within radiusMeters of center.
func WithinRadius(center, p Coordinate, radiusMeters float64) bool {
	return Haversine(center, p) <= radiusMeters
}

// SameSpot reports whether two coordinates are within toleranceMeters of
// each other. Used for cross-provider de-duplication.
func SameSpot(a, b Coordinate, toleranceMeters float64) bool {
	return Haversine(a, b) <= toleranceMeters
}
