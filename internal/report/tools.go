package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"geocontext/internal/geo"
	"geocontext/internal/snapshot"
)

// Tool names form a closed set; the agent rejects anything else.
const (
	ToolPlacesSearch    = "places.search"
	ToolWaterwayNearest = "waterway.nearest"
	ToolFactsLookup     = "facts.lookup"
	ToolWeatherCurrent  = "weather.current"
)

// ToolSpec documents a tool's contract (name + input schema).
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Tool is a minimal in-process tool bound to one query's center/radius.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// Binding ties the tool set to the live adapters for one query. Nil
// adapters leave their tool unregistered.
type Binding struct {
	Center       geo.Coordinate
	RadiusMeters int
	Places       snapshot.PlacesAdapter
	Waterways    snapshot.WaterwayAdapter
	Facts        snapshot.FactFinder
	Weather      snapshot.WeatherAdapter
}

// Registry dispatches tool calls and memoizes results per run so the
// model cannot trigger the same upstream request twice.
type Registry struct {
	mu    sync.Mutex
	tools map[string]Tool
	memo  map[string]memoEntry
}

type memoEntry struct {
	out json.RawMessage
	err error
}

func NewRegistry(b Binding) *Registry {
	r := &Registry{tools: map[string]Tool{}, memo: map[string]memoEntry{}}
	if b.Places != nil {
		r.register(&placesSearchTool{b: b})
	}
	if b.Waterways != nil {
		r.register(&waterwayNearestTool{b: b})
	}
	if b.Facts != nil {
		r.register(&factsLookupTool{b: b})
	}
	if b.Weather != nil {
		r.register(&weatherCurrentTool{b: b})
	}
	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Spec().Name] = t
}

// Specs returns the specs of the registered tools in a fixed order.
func (r *Registry) Specs() []ToolSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ToolSpec
	for _, name := range []string{ToolPlacesSearch, ToolWaterwayNearest, ToolFactsLookup, ToolWeatherCurrent} {
		if t, ok := r.tools[name]; ok {
			out = append(out, t.Spec())
		}
	}
	return out
}

// Call invokes a tool, serving repeated (name, args) pairs from the
// per-run memo. The cache key uses the canonical re-encoding of the
// decoded arguments, so formatting noise in the model's JSON is ignored.
func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	r.mu.Lock()
	t, ok := r.tools[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("report: unknown tool %q", name)
	}
	key, err := canonicalKey(name, t, input)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if e, hit := r.memo[key]; hit {
		r.mu.Unlock()
		return e.out, e.err
	}
	r.mu.Unlock()

	out, callErr := t.Call(ctx, input)
	r.mu.Lock()
	r.memo[key] = memoEntry{out: out, err: callErr}
	r.mu.Unlock()
	return out, callErr
}

func canonicalKey(name string, t Tool, input json.RawMessage) (string, error) {
	type canonicalizer interface{ canonicalize(json.RawMessage) (string, error) }
	if c, ok := t.(canonicalizer); ok {
		args, err := c.canonicalize(input)
		if err != nil {
			return "", err
		}
		return name + "|" + args, nil
	}
	return name + "|" + string(input), nil
}

// -------- places.search --------

type placesSearchArgs struct {
	Selectors    []string `json:"selectors,omitempty"`
	RadiusMeters int      `json:"radius_meters,omitempty"`
}

type placesSearchTool struct{ b Binding }

func (t *placesSearchTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolPlacesSearch,
		Description: "Search the places index around the query center. Optional tag selectors like \"shop\"=\"bakery\" narrow the result.",
		InputSchema: json.RawMessage(`{"selectors":["string"],"radius_meters":"int (optional, capped at the query radius)"}`),
	}
}

func (t *placesSearchTool) decode(input json.RawMessage) (placesSearchArgs, error) {
	var args placesSearchArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return args, fmt.Errorf("report: bad places.search input: %w", err)
		}
	}
	if args.RadiusMeters <= 0 || args.RadiusMeters > t.b.RadiusMeters {
		args.RadiusMeters = t.b.RadiusMeters
	}
	return args, nil
}

func (t *placesSearchTool) canonicalize(input json.RawMessage) (string, error) {
	args, err := t.decode(input)
	if err != nil {
		return "", err
	}
	b, _ := json.Marshal(args)
	return string(b), nil
}

func (t *placesSearchTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	args, err := t.decode(input)
	if err != nil {
		return nil, err
	}
	recs, err := t.b.Places.Search(ctx, t.b.Center, args.RadiusMeters, args.Selectors)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recs)
}

// -------- waterway.nearest --------

type waterwayNearestArgs struct {
	Max int `json:"max,omitempty"`
}

type waterwayNearestTool struct{ b Binding }

func (t *waterwayNearestTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolWaterwayNearest,
		Description: "List the nearest water features (rivers, canals, coastline) around the query center, nearest first.",
		InputSchema: json.RawMessage(`{"max":"int (optional, default 5)"}`),
	}
}

func (t *waterwayNearestTool) decode(input json.RawMessage) (waterwayNearestArgs, error) {
	var args waterwayNearestArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return args, fmt.Errorf("report: bad waterway.nearest input: %w", err)
		}
	}
	if args.Max <= 0 {
		args.Max = 5
	}
	return args, nil
}

func (t *waterwayNearestTool) canonicalize(input json.RawMessage) (string, error) {
	args, err := t.decode(input)
	if err != nil {
		return "", err
	}
	b, _ := json.Marshal(args)
	return string(b), nil
}

func (t *waterwayNearestTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	args, err := t.decode(input)
	if err != nil {
		return nil, err
	}
	recs, err := t.b.Waterways.Waterways(ctx, t.b.Center, t.b.RadiusMeters)
	if err != nil {
		return nil, err
	}
	if len(recs) > args.Max {
		recs = recs[:args.Max]
	}
	return json.Marshal(recs)
}

// -------- facts.lookup --------

type factsLookupArgs struct {
	Max int `json:"max,omitempty"`
}

type factsLookupTool struct{ b Binding }

func (t *factsLookupTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolFactsLookup,
		Description: "Look up short encyclopedic facts about the area.",
		InputSchema: json.RawMessage(`{"max":"int (optional, default 3)"}`),
	}
}

func (t *factsLookupTool) decode(input json.RawMessage) (factsLookupArgs, error) {
	var args factsLookupArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return args, fmt.Errorf("report: bad facts.lookup input: %w", err)
		}
	}
	if args.Max <= 0 {
		args.Max = 3
	}
	return args, nil
}

func (t *factsLookupTool) canonicalize(input json.RawMessage) (string, error) {
	args, err := t.decode(input)
	if err != nil {
		return "", err
	}
	b, _ := json.Marshal(args)
	return string(b), nil
}

func (t *factsLookupTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	args, err := t.decode(input)
	if err != nil {
		return nil, err
	}
	recs, err := t.b.Facts.Facts(ctx, t.b.Center, t.b.RadiusMeters)
	if err != nil {
		return nil, err
	}
	if len(recs) > args.Max {
		recs = recs[:args.Max]
	}
	return json.Marshal(recs)
}

// -------- weather.current --------

type weatherCurrentTool struct{ b Binding }

func (t *weatherCurrentTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolWeatherCurrent,
		Description: "Current weather at the query center.",
		InputSchema: json.RawMessage(`{}`),
	}
}

func (t *weatherCurrentTool) canonicalize(json.RawMessage) (string, error) {
	// No arguments; every call is the same call.
	return "{}", nil
}

func (t *weatherCurrentTool) Call(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	rec, err := t.b.Weather.Current(ctx, t.b.Center)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}
