package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"geocontext/internal/fusion"
	"geocontext/internal/snapshot"
)

// ValidationError marks a final candidate the validator refused. The
// agent retries once on this, then falls back; it is never surfaced to
// the end caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "report: validation failed: " + e.Reason }

func rejectf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var validCategories = func() map[fusion.Category]struct{} {
	m := make(map[fusion.Category]struct{}, len(fusion.Categories))
	for _, c := range fusion.Categories {
		m[c] = struct{}{}
	}
	return m
}()

// whitelist is the set of entity names a report may mention, keyed by
// normalized name.
type whitelist map[string]fusion.Category

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func whitelistFrom(snap *snapshot.ContextSnapshot, extra []fusion.POI) whitelist {
	w := whitelist{}
	for _, p := range snap.POIs() {
		w[normalizeName(p.Name)] = p.Category
	}
	for _, p := range extra {
		w[normalizeName(p.Name)] = p.Category
	}
	return w
}

// Validate parses a final candidate and checks it against the snapshot.
// Every failure mode returns a *ValidationError.
func Validate(raw json.RawMessage, snap *snapshot.ContextSnapshot, extra []fusion.POI) (snapshot.Report, error) {
	var rep snapshot.Report
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rep); err != nil {
		return rep, rejectf("malformed report json: %v", err)
	}

	if strings.TrimSpace(rep.Summary) == "" {
		return rep, rejectf("summary is empty")
	}
	if strings.TrimSpace(rep.Recommendation) == "" {
		return rep, rejectf("recommendation is empty")
	}
	if strings.TrimSpace(rep.LandUse) == "" {
		return rep, rejectf("land_use is empty")
	}
	if strings.TrimSpace(rep.Risks.Flood) == "" || strings.TrimSpace(rep.Risks.AirQuality) == "" {
		return rep, rejectf("risk sections incomplete")
	}

	allowed := whitelistFrom(snap, extra)
	for _, h := range rep.NearbyHighlights {
		if strings.TrimSpace(h.Name) == "" {
			return rep, rejectf("highlight with empty name")
		}
		if _, ok := validCategories[h.Category]; !ok {
			return rep, rejectf("unknown category %q", h.Category)
		}
		cat, ok := allowed[normalizeName(h.Name)]
		if !ok {
			return rep, rejectf("entity %q does not exist in the snapshot", h.Name)
		}
		if cat != h.Category {
			return rep, rejectf("entity %q is a %s, not a %s", h.Name, cat, h.Category)
		}
		if h.DistanceMeters < 0 {
			return rep, rejectf("negative distance for %q", h.Name)
		}
	}

	if rep.InsufficientData != (len(rep.NearbyHighlights) == 0) {
		return rep, rejectf("insufficient_data=%v inconsistent with %d highlights",
			rep.InsufficientData, len(rep.NearbyHighlights))
	}
	return rep, nil
}
