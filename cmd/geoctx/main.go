// geoctx is a one-shot CLI: build a context snapshot for a coordinate,
// derive a report, and print both as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"geocontext/internal/app"
	"geocontext/internal/cache/snapcache"
	"geocontext/internal/chat"
	"geocontext/internal/geo"
	"geocontext/internal/llmclient"
	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

func main() {
	lat := flag.Float64("lat", 40.4168, "latitude")
	lon := flag.Float64("lon", -3.7038, "longitude")
	radius := flag.Int("radius", 1000, "search radius in meters")
	question := flag.String("ask", "", "optional follow-up question")
	timeout := flag.Duration("timeout", 6*time.Second, "per-adapter timeout")
	flag.Parse()

	_ = godotenv.Load()

	overpass := source.NewOverpass("https://overpass-api.de/api/interpreter", *timeout)
	adapters := snapshot.Adapters{
		Places:    overpass,
		Waterways: overpass,
		Reverse:   source.NewNominatim("https://nominatim.openstreetmap.org", *timeout),
		Air:       source.NewAirQuality("https://air-quality-api.open-meteo.com", *timeout),
		Facts:     source.NewWikipedia("https://en.wikipedia.org/w/api.php", *timeout),
		Weather:   source.NewWeather("https://api.open-meteo.com", *timeout),
	}

	var llm llmclient.LLMClient
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		ctx := context.Background()
		gemini, err := llmclient.NewGeminiClient(ctx, key, os.Getenv("LLM_MODEL"))
		if err != nil {
			log.Printf("gemini unavailable, using the deterministic reporter: %v", err)
		} else {
			llm = llmclient.Wrap(gemini, llmclient.Retry(3, 300*time.Millisecond))
			defer llm.Close()
		}
	}

	svc := app.NewService(
		snapshot.NewBuilder(adapters, *timeout),
		snapcache.NewResilient(snapcache.NewTTLStore(5*time.Minute)),
		llm,
		chat.NewEngine(llm, adapters.Places, nil),
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	center := geo.Coordinate{Lat: *lat, Lon: *lon}
	snap, warnings, err := svc.BuildContext(ctx, center, *radius, app.BuildOptions{})
	if err != nil {
		log.Fatalf("build context: %v", err)
	}
	rep, generative, repWarnings := svc.GenerateReport(ctx, snap, "")

	out := map[string]any{
		"snapshot":        snap,
		"report":          rep,
		"used_generative": generative,
		"warnings":        append(warnings, repWarnings...),
	}
	if *question != "" {
		answer, limitations, used := svc.Answer(ctx, *question, snap, &rep)
		out["answer"] = map[string]any{
			"text":         answer,
			"limitations":  limitations,
			"sources_used": used,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}
