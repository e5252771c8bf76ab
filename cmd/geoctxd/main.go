package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geocontext/internal/app"
	"geocontext/internal/cache/rediscache"
	"geocontext/internal/cache/snapcache"
	"geocontext/internal/chat"
	"geocontext/internal/config"
	"geocontext/internal/llmclient"
	"geocontext/internal/reportlog"
	"geocontext/internal/server"
	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	svc, cleanup := buildService(cfg)
	defer cleanup()

	srv := server.New(cfg.Port, newMux(svc))
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func buildService(cfg *config.Config) (*app.Service, func()) {
	a := cfg.Adapters
	overpass := source.NewOverpass(a.OverpassURL, a.Timeout)
	adapters := snapshot.Adapters{
		Places:    overpass,
		Waterways: overpass,
		Reverse:   source.NewNominatim(a.NominatimURL, a.Timeout),
		Air:       source.NewAirQuality(a.AirQualityURL, a.Timeout),
		Facts:     source.NewWikipedia(a.WikipediaURL, a.Timeout),
		Weather:   source.NewWeather(a.WeatherURL, a.Timeout),
	}
	if a.FloodRiskURL != "" {
		adapters.Flood = source.NewFloodRisk(a.FloodRiskURL, a.FloodRiskKey, a.Timeout)
	}
	if a.LandCoverURL != "" {
		adapters.LandCover = source.NewLandCover(a.LandCoverURL, a.Timeout)
	}
	if a.GeoapifyKey != "" {
		adapters.AltPlaces = source.NewGeoapify(a.GeoapifyURL, a.GeoapifyKey, a.Timeout)
	}
	builder := snapshot.NewBuilder(adapters, a.Timeout)

	var closers []func()

	var store snapcache.Store = snapcache.NewTTLStore(cfg.Cache.TTL)
	if cfg.Cache.RedisAddr != "" {
		redisStore := rediscache.New(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		closers = append(closers, func() { redisStore.Close() })
		store = redisStore
	}
	cache := snapcache.NewResilient(store)

	var llm llmclient.LLMClient
	if cfg.LLM.APIKey != "" {
		gemini, err := llmclient.NewGeminiClient(context.Background(), cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			log.Printf("llm: gemini unavailable, running deterministic-only: %v", err)
		} else {
			llm = llmclient.Wrap(gemini,
				llmclient.WithLogging(nil),
				llmclient.Retry(3, 300*time.Millisecond),
				llmclient.RateLimit(cfg.LLM.RPS, cfg.LLM.Burst),
			)
			closers = append(closers, func() { llm.Close() })
		}
	} else {
		log.Printf("llm: no API key configured, running deterministic-only")
	}

	var worker *reportlog.Worker
	switch cfg.Log.Backend {
	case "postgres":
		pg, err := reportlog.NewPostgresStore(cfg.Log.PostgresDSN)
		if err != nil {
			log.Printf("reportlog: postgres disabled: %v", err)
		} else {
			worker = reportlog.NewWorker(pg, 128)
			closers = append(closers, func() { worker.Close(); pg.Close() })
		}
	case "s3":
		s3, err := reportlog.NewS3Store(reportlog.S3Config{
			Endpoint:  cfg.Log.S3Endpoint,
			Region:    cfg.Log.S3Region,
			AccessKey: cfg.Log.S3AccessKey,
			SecretKey: cfg.Log.S3SecretKey,
			Bucket:    cfg.Log.S3Bucket,
			UseSSL:    cfg.Log.S3UseSSL,
		})
		if err != nil {
			log.Printf("reportlog: s3 disabled: %v", err)
		} else {
			worker = reportlog.NewWorker(s3, 128)
			closers = append(closers, worker.Close)
		}
	}

	svc := app.NewService(builder, cache, llm, chat.NewEngine(llm, adapters.Places, nil), worker)
	svc.Agent = app.AgentOptions{MaxRounds: cfg.LLM.MaxRounds, Timeout: cfg.LLM.Timeout}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return svc, cleanup
}
