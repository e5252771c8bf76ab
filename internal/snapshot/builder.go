package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"geocontext/internal/fusion"
	"geocontext/internal/geo"
	"geocontext/internal/metrics"
	"geocontext/internal/source"
)

// ErrNoViableSnapshot is returned when not even a minimal snapshot can be
// produced: both the reverse geocoder and the primary places index failed.
var ErrNoViableSnapshot = errors.New("snapshot: no viable snapshot")

// Adapter contracts, defined on the consumer side. Every call gets exactly
// one attempt per build; retries are the caller's business.
type (
	PlacesAdapter interface {
		Search(ctx context.Context, center geo.Coordinate, radiusMeters int, selectors []string) ([]source.PlaceRecord, error)
	}
	WaterwayAdapter interface {
		Waterways(ctx context.Context, center geo.Coordinate, radiusMeters int) ([]source.WaterwayRecord, error)
	}
	ReverseGeocoder interface {
		Lookup(ctx context.Context, center geo.Coordinate) (*source.PlaceInfo, error)
	}
	RiskAssessor interface {
		Assess(ctx context.Context, center geo.Coordinate) (*source.RiskReport, error)
	}
	LandCoverClassifier interface {
		Classify(ctx context.Context, center geo.Coordinate) (*source.LandCoverRecord, error)
	}
	FactFinder interface {
		Facts(ctx context.Context, center geo.Coordinate, radiusMeters int) ([]source.FactRecord, error)
	}
	AltPlacesAdapter interface {
		Search(ctx context.Context, center geo.Coordinate, radiusMeters int) ([]source.PlaceRecord, error)
	}
	WeatherAdapter interface {
		Current(ctx context.Context, center geo.Coordinate) (*source.WeatherRecord, error)
	}
)

// Adapters bundles the upstream sources a Builder fans out to. Nil entries
// are treated as permanently unavailable sources.
type Adapters struct {
	Places    PlacesAdapter
	Waterways WaterwayAdapter
	Reverse   ReverseGeocoder
	Flood     RiskAssessor
	Air       RiskAssessor
	LandCover LandCoverClassifier
	Facts     FactFinder
	AltPlaces AltPlacesAdapter
	Weather   WeatherAdapter
}

// Builder turns (center, radius) into a ContextSnapshot. All adapters are
// queried concurrently under independent timeouts; every failure becomes
// data (a false SourcesUsed boolean plus a warning), never a panic or an
// error — except when the minimum viable sources are both gone.
type Builder struct {
	Adapters       Adapters
	AdapterTimeout time.Duration
	MaxWaterways   int
}

func NewBuilder(a Adapters, adapterTimeout time.Duration) *Builder {
	if adapterTimeout <= 0 {
		adapterTimeout = 5 * time.Second
	}
	return &Builder{Adapters: a, AdapterTimeout: adapterTimeout, MaxWaterways: 5}
}

// buildResults collects the settled state of every adapter call. Each
// pair (value, ok) is written by exactly one goroutine before the join.
type buildResults struct {
	places    []source.PlaceRecord
	placesOK  bool
	altPlaces []source.PlaceRecord
	altOK     bool
	waterways []source.WaterwayRecord
	waterOK   bool
	place     *source.PlaceInfo
	flood     *source.RiskReport
	floodOK   bool
	air       *source.RiskReport
	airOK     bool
	landCover *source.LandCoverRecord
	landOK    bool
	facts     []source.FactRecord
	factsOK   bool
	weather   *source.WeatherRecord
}

// Build assembles a fresh snapshot. It returns ErrNoViableSnapshot only
// when both the reverse geocoder and the primary places index failed.
func (b *Builder) Build(ctx context.Context, center geo.Coordinate, radiusMeters int) (*ContextSnapshot, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("snapshot: radius must be positive, got %d", radiusMeters)
	}
	metrics.SnapshotBuildsTotal.Inc()

	var res buildResults
	var wg sync.WaitGroup

	// One goroutine per adapter; each failure is absorbed into res.
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Places == nil {
			return
		}
		recs, err := b.Adapters.Places.Search(c, center, radiusMeters, nil)
		if err != nil {
			log.Printf("snapshot: places adapter failed: %v", err)
			return
		}
		res.places, res.placesOK = recs, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.AltPlaces == nil {
			return
		}
		recs, err := b.Adapters.AltPlaces.Search(c, center, radiusMeters)
		if err != nil {
			log.Printf("snapshot: alt places adapter failed: %v", err)
			return
		}
		res.altPlaces, res.altOK = recs, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Waterways == nil {
			return
		}
		ws, err := b.Adapters.Waterways.Waterways(c, center, radiusMeters)
		if err != nil {
			log.Printf("snapshot: waterway lookup failed: %v", err)
			return
		}
		res.waterways, res.waterOK = ws, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Reverse == nil {
			return
		}
		p, err := b.Adapters.Reverse.Lookup(c, center)
		if err != nil {
			log.Printf("snapshot: reverse geocode failed: %v", err)
			return
		}
		res.place = p
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Flood == nil {
			return
		}
		rep, err := b.Adapters.Flood.Assess(c, center)
		if err != nil {
			log.Printf("snapshot: flood assessment failed: %v", err)
			return
		}
		res.flood, res.floodOK = rep, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Air == nil {
			return
		}
		rep, err := b.Adapters.Air.Assess(c, center)
		if err != nil {
			log.Printf("snapshot: air-quality assessment failed: %v", err)
			return
		}
		res.air, res.airOK = rep, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.LandCover == nil {
			return
		}
		rec, err := b.Adapters.LandCover.Classify(c, center)
		if err != nil {
			log.Printf("snapshot: land-cover classification failed: %v", err)
			return
		}
		res.landCover, res.landOK = rec, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Facts == nil {
			return
		}
		facts, err := b.Adapters.Facts.Facts(c, center, radiusMeters)
		if err != nil {
			log.Printf("snapshot: facts lookup failed: %v", err)
			return
		}
		res.facts, res.factsOK = facts, true
	})
	b.spawn(ctx, &wg, func(c context.Context) {
		if b.Adapters.Weather == nil {
			return
		}
		rec, err := b.Adapters.Weather.Current(c, center)
		if err != nil {
			log.Printf("snapshot: weather lookup failed: %v", err)
			return
		}
		res.weather = rec
	})
	wg.Wait()

	if !res.placesOK && res.place == nil {
		return nil, fmt.Errorf("%w: reverse geocoder and places index both failed", ErrNoViableSnapshot)
	}
	return b.assemble(center, radiusMeters, &res), nil
}

func (b *Builder) spawn(ctx context.Context, wg *sync.WaitGroup, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, cancel := context.WithTimeout(ctx, b.AdapterTimeout)
		defer cancel()
		fn(c)
	}()
}

// assemble applies the degradation rules and produces the snapshot.
// It is deterministic for a given settled result set, regardless of which
// adapter finished first.
func (b *Builder) assemble(center geo.Coordinate, radiusMeters int, res *buildResults) *ContextSnapshot {
	snap := &ContextSnapshot{
		Center:       center,
		RadiusMeters: radiusMeters,
		BuiltAt:      time.Now().UTC(),
		Warnings:     []string{},
	}

	// Place identity.
	if res.place != nil {
		snap.Place = Place{
			Name:         res.place.Name,
			Address:      res.place.Address,
			Municipality: res.place.Municipality,
			Province:     res.place.Province,
			Region:       res.place.Region,
			Country:      res.place.Country,
		}
		snap.SourcesUsed.ReverseGeocode = true
	} else {
		snap.Place = Place{Name: fmt.Sprintf("point %.4f, %.4f", center.Lat, center.Lon)}
		snap.warn("reverse geocoder unavailable; using raw coordinates as place name")
	}

	// POI fusion: primary index first, alternate second (fixed priority).
	var inputs [][]source.PlaceRecord
	if res.placesOK {
		inputs = append(inputs, res.places)
		snap.SourcesUsed.Places = true
	} else {
		snap.warn("primary places index unavailable; POI catalog may be incomplete")
	}
	if res.altOK {
		inputs = append(inputs, res.altPlaces)
		snap.SourcesUsed.AltPlaces = true
	}
	snap.POIsByCategory, snap.POISummary = fusion.Fuse(center, radiusMeters, inputs...)

	// Waterways and the coastal tri-state.
	if res.waterOK {
		max := b.MaxWaterways
		if max <= 0 {
			max = 5
		}
		ws := res.waterways
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].DistanceMeters < ws[j].DistanceMeters })
		coastal := false
		for _, w := range ws {
			if w.Coastline {
				coastal = true
			}
		}
		for _, w := range ws {
			if len(snap.Environment.NearestWaterways) >= max {
				break
			}
			if w.Name == "" {
				continue
			}
			snap.Environment.NearestWaterways = append(snap.Environment.NearestWaterways, Waterway{
				Name:           w.Name,
				Kind:           w.Kind,
				DistanceMeters: w.DistanceMeters,
				Coastline:      w.Coastline,
			})
		}
		snap.Environment.IsCoastal = &coastal
	} else {
		snap.Environment.IsCoastal = nil
		snap.warn("waterway data unavailable; coastal status unknown")
	}

	// Flood risk plus the proxy rule.
	if res.floodOK {
		snap.FloodRisk = NewRiskLayer(source.ProviderFloodRisk, res.flood)
		snap.SourcesUsed.FloodRisk = snap.FloodRisk.OK
	} else {
		snap.FloodRisk = NewRiskLayer(source.ProviderFloodRisk, nil)
	}
	if snap.FloodRisk.Status != source.RiskOK || snap.FloodRisk.Level == "" {
		if w, ok := nearestNamedWaterway(snap.Environment.NearestWaterways); ok {
			if ApplyFloodProxyNote(&snap.FloodRisk, w) {
				snap.warn("flood risk inferred from nearby water features, not from the official source")
			}
		}
		if snap.FloodRisk.Status == source.RiskDown {
			snap.warn("official flood-risk service is down")
		} else if snap.FloodRisk.Status == source.RiskVisualOnly {
			snap.warn("flood layers are display-only; no numeric hazard level available")
		}
	}

	// Air quality.
	if res.airOK {
		snap.AirQuality = NewRiskLayer(source.ProviderAirQuality, res.air)
		snap.SourcesUsed.AirQuality = snap.AirQuality.OK
		if snap.AirQuality.Status != source.RiskOK {
			snap.warn("air-quality index unavailable for this point")
		}
	} else {
		snap.AirQuality = NewRiskLayer(source.ProviderAirQuality, nil)
		snap.warn("air-quality service is down")
	}

	// Land cover, with the alternate land-use surrogate.
	if res.landOK && res.landCover != nil {
		snap.LandCover = &LandCover{
			Code:   res.landCover.Code,
			Label:  res.landCover.Label,
			Source: source.ProviderLandCover,
		}
		snap.SourcesUsed.LandCover = true
		snap.Environment.LandUseSummary = res.landCover.Label
	} else {
		if !res.landOK {
			snap.warn("land-cover classifier unavailable")
		}
		if summary := surrogateLandUse(snap.POISummary); summary != "" {
			snap.Environment.LandUseSummary = summary
			snap.warn("land-use summary derived from nearby places, not from the official classifier")
		}
	}

	// Facts.
	if res.factsOK {
		for _, f := range res.facts {
			snap.Facts = append(snap.Facts, Fact{Title: f.Title, Summary: f.Summary})
		}
		snap.SourcesUsed.Facts = len(snap.Facts) > 0
	} else {
		snap.warn("encyclopedic knowledge base unavailable")
	}

	// Weather and elevation.
	if res.weather != nil {
		snap.Environment.Weather = &WeatherNow{
			TemperatureC:    res.weather.TemperatureC,
			WindSpeedKmh:    res.weather.WindSpeedKmh,
			PrecipitationMm: res.weather.PrecipitationMm,
			Description:     res.weather.Description,
		}
		snap.Environment.ElevationM = res.weather.ElevationM
		snap.SourcesUsed.Weather = true
	} else {
		snap.warn("weather service unavailable")
	}

	if len(snap.Warnings) > 0 {
		metrics.SnapshotDegradedTotal.Inc()
	}
	return snap
}

func (s *ContextSnapshot) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

func nearestNamedWaterway(ws []Waterway) (Waterway, bool) {
	for _, w := range ws {
		if w.Name != "" {
			return w, true
		}
	}
	return Waterway{}, false
}

// surrogateLandUse derives a coarse land-use description from the fused
// POI mix when the official classifier has nothing for the point.
func surrogateLandUse(summary fusion.Summary) string {
	if summary.Total == 0 {
		return ""
	}
	commercial := summary.Counts[fusion.CategoryRestaurant] +
		summary.Counts[fusion.CategoryFastFood] +
		summary.Counts[fusion.CategoryBar] +
		summary.Counts[fusion.CategoryCafe] +
		summary.Counts[fusion.CategorySupermarket] +
		summary.Counts[fusion.CategoryBank]
	green := summary.Counts[fusion.CategoryPark] + summary.Counts[fusion.CategoryViewpoint]
	switch {
	case green > commercial:
		return "predominantly green or recreational surroundings"
	case commercial >= summary.Total/2:
		return "dense commercial and hospitality fabric"
	default:
		return "mixed urban fabric"
	}
}
