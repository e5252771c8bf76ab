// Package snapshot defines the immutable aggregated view of everything
// known about one (center, radius) query, and the builder that assembles
// it from the upstream adapters.
package snapshot

import (
	"fmt"
	"strings"
	"time"

	"geocontext/internal/fusion"
	"geocontext/internal/geo"
	"geocontext/internal/source"
)

// Place is the reverse-geocoded identity of the query center.
type Place struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Municipality string `json:"municipality"`
	Province     string `json:"province,omitempty"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country,omitempty"`
}

// RiskLayer is the normalized state of one official risk source.
// Invariants: Status==DOWN implies OK==false; Status==VISUAL_ONLY implies
// OK==true but no numeric value is trustworthy.
type RiskLayer struct {
	OK       bool              `json:"ok"`
	Status   source.RiskStatus `json:"status"`
	Source   string            `json:"source"`
	Level    string            `json:"level,omitempty"`
	Details  string            `json:"details,omitempty"`
	Evidence []string          `json:"evidence,omitempty"`
}

// NewRiskLayer builds a RiskLayer from an adapter report, enforcing the
// status/ok invariants regardless of what the adapter produced.
func NewRiskLayer(provider string, rep *source.RiskReport) RiskLayer {
	if rep == nil {
		return RiskLayer{
			OK:      false,
			Status:  source.RiskDown,
			Source:  provider,
			Details: "service unreachable",
		}
	}
	layer := RiskLayer{
		Status:   rep.Status,
		Source:   provider,
		Level:    rep.Level,
		Details:  rep.Details,
		Evidence: rep.Evidence,
	}
	switch rep.Status {
	case source.RiskDown:
		layer.OK = false
		layer.Level = "" // nothing numeric is trustworthy
	case source.RiskVisualOnly:
		layer.OK = true
		layer.Level = ""
	default:
		layer.OK = true
		layer.Status = source.RiskOK
	}
	return layer
}

// proxyMarker tags details text that carries an inferred, non-official
// flood note. Its presence makes the annotation idempotent.
const proxyMarker = "[proxy]"

// ApplyFloodProxyNote appends a waterway-based inference note to a flood
// layer whose official reading is unusable. It never upgrades Status and
// is idempotent: a layer already carrying the marker is left untouched.
func ApplyFloodProxyNote(layer *RiskLayer, w Waterway) bool {
	if layer == nil {
		return false
	}
	if strings.Contains(layer.Details, proxyMarker) {
		return false
	}
	note := fmt.Sprintf("%s nearest water feature %s at %.0f m", proxyMarker, w.Name, w.DistanceMeters)
	if layer.Details == "" {
		layer.Details = note
	} else {
		layer.Details = layer.Details + "; " + note
	}
	return true
}

// LandCover is the official land-cover classification, absent when the
// classifier has no coverage at the point.
type LandCover struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Source string `json:"source"`
}

// Waterway is a nearby water feature, used for the flood proxy rule and
// the coastal determination.
type Waterway struct {
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	DistanceMeters float64 `json:"distance_meters"`
	Coastline      bool    `json:"coastline,omitempty"`
}

// WeatherNow is the current-conditions slice of the environment.
type WeatherNow struct {
	TemperatureC    float64 `json:"temperature_c"`
	WindSpeedKmh    float64 `json:"wind_speed_kmh"`
	PrecipitationMm float64 `json:"precipitation_mm"`
	Description     string  `json:"description,omitempty"`
}

// Environment groups the physical-setting axes of the snapshot.
// IsCoastal is nil when no waterway data was retrievable at all (absence
// of evidence), true/false only when it was (evidence of absence).
type Environment struct {
	LandUseSummary   string      `json:"land_use_summary,omitempty"`
	NearestWaterways []Waterway  `json:"nearest_waterways,omitempty"`
	ElevationM       *float64    `json:"elevation_m,omitempty"`
	IsCoastal        *bool       `json:"is_coastal"`
	Weather          *WeatherNow `json:"weather,omitempty"`
}

// Fact is a short encyclopedic statement about the place.
type Fact struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// SourcesUsed is the audit trail: one boolean per provider, true only when
// that adapter call actually returned usable data for this snapshot.
type SourcesUsed struct {
	Places         bool `json:"places"`
	ReverseGeocode bool `json:"reverse_geocode"`
	FloodRisk      bool `json:"flood_risk"`
	AirQuality     bool `json:"air_quality"`
	LandCover      bool `json:"land_cover"`
	Facts          bool `json:"facts"`
	AltPlaces      bool `json:"alt_places"`
	Weather        bool `json:"weather"`
}

// Names lists the audit-trail providers that were actually used.
func (s SourcesUsed) Names() []string {
	var out []string
	add := func(used bool, name string) {
		if used {
			out = append(out, name)
		}
	}
	add(s.Places, "places index")
	add(s.AltPlaces, "alternate places index")
	add(s.ReverseGeocode, "reverse geocoder")
	add(s.FloodRisk, "official flood-risk service")
	add(s.AirQuality, "air-quality service")
	add(s.LandCover, "land-cover classifier")
	add(s.Facts, "encyclopedic knowledge base")
	add(s.Weather, "weather service")
	return out
}

// ContextSnapshot is the immutable aggregate produced once per query.
type ContextSnapshot struct {
	Center         geo.Coordinate                   `json:"center"`
	RadiusMeters   int                              `json:"radius_meters"`
	Place          Place                            `json:"place"`
	POIsByCategory map[fusion.Category][]fusion.POI `json:"pois_by_category"`
	POISummary     fusion.Summary                   `json:"poi_summary"`
	LandCover      *LandCover                       `json:"land_cover,omitempty"`
	FloodRisk      RiskLayer                        `json:"flood_risk"`
	AirQuality     RiskLayer                        `json:"air_quality"`
	Facts          []Fact                           `json:"facts,omitempty"`
	Environment    Environment                      `json:"environment"`
	SourcesUsed    SourcesUsed                      `json:"sources_used"`
	Warnings       []string                         `json:"warnings"`
	BuiltAt        time.Time                        `json:"built_at"`
}

// POIs flattens all category buckets, preserving per-bucket order.
func (s *ContextSnapshot) POIs() []fusion.POI {
	var out []fusion.POI
	for _, cat := range fusion.Categories {
		out = append(out, s.POIsByCategory[cat]...)
	}
	return out
}

// Reduced returns a copy keeping only the nearest keep entries per
// category. Used for the agent's retry with a smaller prompt.
func (s *ContextSnapshot) Reduced(keep int) *ContextSnapshot {
	if keep <= 0 {
		keep = 3
	}
	out := *s
	out.POIsByCategory = make(map[fusion.Category][]fusion.POI, len(s.POIsByCategory))
	out.POISummary = fusion.Summary{Counts: make(map[fusion.Category]int)}
	for cat, bucket := range s.POIsByCategory {
		if len(bucket) > keep {
			bucket = bucket[:keep]
		}
		cp := make([]fusion.POI, len(bucket))
		copy(cp, bucket)
		out.POIsByCategory[cat] = cp
		out.POISummary.Counts[cat] = len(cp)
		out.POISummary.Total += len(cp)
	}
	if len(out.Facts) > 2 {
		out.Facts = out.Facts[:2]
	}
	return &out
}

// Report is the derived natural-language view of a snapshot. Every named
// entity in it must exist, by exact name, in the snapshot it came from.
type Report struct {
	Summary          string      `json:"summary"`
	NearbyHighlights []Highlight `json:"nearby_highlights"`
	Risks            Risks       `json:"risks"`
	LandUse          string      `json:"land_use"`
	Recommendation   string      `json:"recommendation"`
	Sources          []string    `json:"sources"`
	Limitations      []string    `json:"limitations"`
	InsufficientData bool        `json:"insufficient_data"`
}

// Highlight is one named place surfaced by a report.
type Highlight struct {
	Name           string          `json:"name"`
	Category       fusion.Category `json:"category"`
	DistanceMeters float64         `json:"distance_meters"`
}

// Risks is the risk section of a report.
type Risks struct {
	Flood      string `json:"flood"`
	AirQuality string `json:"air_quality"`
}
