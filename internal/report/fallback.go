package report

import (
	"fmt"
	"sort"
	"strings"

	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

// Density thresholds for the fallback summary, in total POI count.
const (
	densityLowMax    = 10
	densityMediumMax = 40
)

// fallbackHighlights is the number of globally nearest POIs surfaced.
const fallbackHighlights = 5

func densityLabel(total int) string {
	switch {
	case total < densityLowMax:
		return "low"
	case total < densityMediumMax:
		return "medium"
	default:
		return "high"
	}
}

// Fallback derives a report from the snapshot alone. Pure: no I/O, no
// randomness, always succeeds, including on an empty snapshot. The
// reason explains why the deterministic path was taken and surfaces as
// the first limitation.
func Fallback(snap *snapshot.ContextSnapshot, reason string) snapshot.Report {
	total := snap.POISummary.Total
	rep := snapshot.Report{
		Summary:          fallbackSummary(snap, total),
		NearbyHighlights: nearestHighlights(snap, fallbackHighlights),
		Risks: snapshot.Risks{
			Flood:      riskSentence("Flood risk", snap.FloodRisk),
			AirQuality: riskSentence("Air quality", snap.AirQuality),
		},
		LandUse:          landUseSentence(snap),
		Sources:          snap.SourcesUsed.Names(),
		InsufficientData: total == 0,
	}
	rep.Recommendation = recommendationSentence(rep.NearbyHighlights)

	if strings.TrimSpace(reason) != "" {
		rep.Limitations = append(rep.Limitations,
			fmt.Sprintf("This report was assembled deterministically (%s).", reason))
	}
	rep.Limitations = append(rep.Limitations, axisLimitations(snap)...)
	return rep
}

func fallbackSummary(snap *snapshot.ContextSnapshot, total int) string {
	name := snap.Place.Name
	if name == "" {
		name = fmt.Sprintf("the point %.4f, %.4f", snap.Center.Lat, snap.Center.Lon)
	}
	if total == 0 {
		return fmt.Sprintf("No mapped points of interest were found within %d m of %s.",
			snap.RadiusMeters, name)
	}
	s := fmt.Sprintf("%s has %d mapped points of interest within %d m (%s density).",
		name, total, snap.RadiusMeters, densityLabel(total))
	if snap.Place.Municipality != "" && snap.Place.Municipality != name {
		s += fmt.Sprintf(" It lies in %s.", snap.Place.Municipality)
	}
	return s
}

// nearestHighlights picks the globally nearest POIs across all
// categories. Distance ascending; ties break by category then name so
// the output is stable across runs.
func nearestHighlights(snap *snapshot.ContextSnapshot, k int) []snapshot.Highlight {
	pois := snap.POIs()
	sort.SliceStable(pois, func(i, j int) bool {
		a, b := pois[i], pois[j]
		if a.DistanceMeters != b.DistanceMeters {
			return a.DistanceMeters < b.DistanceMeters
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	})
	if len(pois) > k {
		pois = pois[:k]
	}
	out := make([]snapshot.Highlight, 0, len(pois))
	for _, p := range pois {
		out = append(out, snapshot.Highlight{
			Name:           p.Name,
			Category:       p.Category,
			DistanceMeters: p.DistanceMeters,
		})
	}
	return out
}

func riskSentence(label string, layer snapshot.RiskLayer) string {
	switch {
	case !layer.OK:
		return fmt.Sprintf("%s data is unavailable for this point.", label)
	case layer.Status == source.RiskVisualOnly || layer.Level == "":
		s := fmt.Sprintf("%s information is available from %s but carries no numeric assessment here.",
			label, layer.Source)
		if layer.Details != "" {
			s += " " + layer.Details
		}
		return s
	default:
		s := fmt.Sprintf("%s is reported as %q by %s.", label, layer.Level, layer.Source)
		if layer.Details != "" {
			s += " " + layer.Details
		}
		return s
	}
}

func landUseSentence(snap *snapshot.ContextSnapshot) string {
	if snap.LandCover != nil {
		return fmt.Sprintf("The surrounding land is classified as %s (%s).",
			snap.LandCover.Label, snap.LandCover.Source)
	}
	if snap.Environment.LandUseSummary != "" {
		return snap.Environment.LandUseSummary
	}
	return "No land-cover information is available for this area."
}

func recommendationSentence(highlights []snapshot.Highlight) string {
	if len(highlights) == 0 {
		return "Not enough nearby data to recommend a specific place."
	}
	h := highlights[0]
	return fmt.Sprintf("Start with %s (%s, %.0f m away).", h.Name, h.Category, h.DistanceMeters)
}

// axisLimitations appends one fixed sentence per optional data axis the
// snapshot is missing.
func axisLimitations(snap *snapshot.ContextSnapshot) []string {
	var out []string
	used := snap.SourcesUsed
	switch {
	case !used.Places && !used.AltPlaces:
		out = append(out, "No points of interest could be retrieved; nearby listings are incomplete or absent.")
	case snap.POISummary.Total == 0:
		out = append(out, "The places index returned no mapped points of interest within this radius.")
	case !used.AltPlaces:
		out = append(out, "Only the primary places index responded; listings may miss commercially curated entries.")
	}
	if !used.FloodRisk {
		out = append(out, "Official flood-risk data was unavailable.")
	}
	if !used.AirQuality {
		out = append(out, "Air-quality measurements were unavailable.")
	}
	if !used.LandCover {
		out = append(out, "No official land-cover classification covers this point.")
	}
	if !used.Facts {
		out = append(out, "No encyclopedic background was found for this area.")
	}
	if !used.Weather {
		out = append(out, "Current weather conditions were unavailable.")
	}
	return out
}
