// Package app wires the builder, cache, reporting agent, chat engine
// and report log behind the public in-process contract.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"geocontext/internal/cache/snapcache"
	"geocontext/internal/chat"
	"geocontext/internal/geo"
	"geocontext/internal/llmclient"
	"geocontext/internal/report"
	"geocontext/internal/reportlog"
	"geocontext/internal/snapshot"
)

// BuildOptions tune one BuildContext call.
type BuildOptions struct {
	// AllowStale opts into the last-known-good snapshot when the
	// primary places adapter is down.
	AllowStale bool
}

// AgentOptions configure the reporting agent per service.
type AgentOptions struct {
	MaxRounds int
	Timeout   time.Duration
}

// Service is the public contract of the core.
type Service struct {
	Builder *snapshot.Builder
	Cache   *snapcache.Resilient
	LLM     llmclient.LLMClient
	Chat    *chat.Engine
	Log     *reportlog.Worker
	Agent   AgentOptions

	// buildSeq distinguishes the latest query from superseded ones:
	// a build that finishes after a newer one started is served but
	// never cached.
	buildSeq atomic.Uint64
}

func NewService(builder *snapshot.Builder, cache *snapcache.Resilient, llm llmclient.LLMClient, chatEngine *chat.Engine, logWorker *reportlog.Worker) *Service {
	return &Service{
		Builder: builder,
		Cache:   cache,
		LLM:     llm,
		Chat:    chatEngine,
		Log:     logWorker,
	}
}

// BuildContext returns a snapshot for (center, radius): cache hit,
// fresh build, or, with opts.AllowStale, the last known good snapshot.
// The only error it returns is a wrapped snapshot.ErrNoViableSnapshot
// (or input validation failure).
func (s *Service) BuildContext(ctx context.Context, center geo.Coordinate, radiusMeters int, opts BuildOptions) (*snapshot.ContextSnapshot, []string, error) {
	key := snapcache.KeyFor(center, radiusMeters)
	if s.Cache != nil {
		if snap, ok := s.Cache.Get(ctx, key); ok {
			if snap.SourcesUsed.Places || !opts.AllowStale {
				return snap, append([]string(nil), snap.Warnings...), nil
			}
			if stale, ok := s.Cache.LastGood(); ok {
				warnings := append([]string{}, stale.Warnings...)
				warnings = append(warnings, "serving the last known good snapshot; the primary places index is currently down")
				return stale, warnings, nil
			}
			return snap, append([]string(nil), snap.Warnings...), nil
		}
	}

	id := s.buildSeq.Add(1)
	snap, err := s.Builder.Build(ctx, center, radiusMeters)
	if err != nil {
		if errors.Is(err, snapshot.ErrNoViableSnapshot) && opts.AllowStale && s.Cache != nil {
			if stale, ok := s.Cache.LastGood(); ok {
				warnings := append([]string{}, stale.Warnings...)
				warnings = append(warnings, "serving the last known good snapshot; the primary sources are currently down")
				return stale, warnings, nil
			}
		}
		return nil, nil, err
	}

	// A build without the primary places index is only the degraded
	// default. A caller that opted into staleness gets the last known
	// good snapshot instead, and the minimal one is never cached.
	if !snap.SourcesUsed.Places && opts.AllowStale && s.Cache != nil {
		if stale, ok := s.Cache.LastGood(); ok {
			warnings := append([]string{}, stale.Warnings...)
			warnings = append(warnings, "serving the last known good snapshot; the primary places index is currently down")
			return stale, warnings, nil
		}
	}

	if s.buildSeq.Load() == id {
		if s.Cache != nil {
			s.Cache.Set(ctx, key, snap)
		}
	} else {
		// A newer query superseded this build; its result is served to
		// its own caller but never cached.
		log.Printf("app: build %d superseded, result not cached", id)
	}
	// Warnings are copied so callers can append without writing into
	// the snapshot shared through the cache.
	return snap, append([]string(nil), snap.Warnings...), nil
}

// GenerateReport derives a report from the snapshot. Never errors; the
// bool is true when the generative path produced the result. Accepted
// and fallback reports alike are persisted write-behind.
func (s *Service) GenerateReport(ctx context.Context, snap *snapshot.ContextSnapshot, placeName string) (snapshot.Report, bool, []string) {
	agent := &report.Agent{
		LLM:       s.LLM,
		Tools:     s.toolRegistry(snap),
		MaxRounds: s.Agent.MaxRounds,
		Timeout:   s.Agent.Timeout,
	}
	rep, generative, warnings := agent.Generate(ctx, snap, placeName)
	s.persist(snap, placeName, rep, generative)
	return rep, generative, warnings
}

func (s *Service) toolRegistry(snap *snapshot.ContextSnapshot) *report.Registry {
	if s.Builder == nil {
		return nil
	}
	a := s.Builder.Adapters
	return report.NewRegistry(report.Binding{
		Center:       snap.Center,
		RadiusMeters: snap.RadiusMeters,
		Places:       a.Places,
		Waterways:    a.Waterways,
		Facts:        a.Facts,
		Weather:      a.Weather,
	})
}

func (s *Service) persist(snap *snapshot.ContextSnapshot, placeName string, rep snapshot.Report, generative bool) {
	if s.Log == nil {
		return
	}
	if placeName == "" {
		placeName = snap.Place.Name
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		log.Printf("app: report payload marshal failed: %v", err)
		return
	}
	category := reportlog.CategoryFallback
	if generative {
		category = reportlog.CategoryGenerated
	}
	s.Log.Record(reportlog.NewEntry(placeName, snap.Center, category, payload))
}

// Answer resolves a chat question against the snapshot. Never errors.
func (s *Service) Answer(ctx context.Context, question string, snap *snapshot.ContextSnapshot, prior *snapshot.Report) (string, []string, snapshot.SourcesUsed) {
	engine := s.Chat
	if engine == nil {
		var places snapshot.PlacesAdapter
		if s.Builder != nil {
			places = s.Builder.Adapters.Places
		}
		engine = chat.NewEngine(s.LLM, places, nil)
	}
	return engine.Answer(ctx, question, snap, prior)
}

// RecentReport returns the most recently persisted report for a place.
func (s *Service) RecentReport(ctx context.Context, placeName string) (reportlog.Entry, bool) {
	if s.Log == nil {
		return reportlog.Entry{}, false
	}
	return s.Log.Lookup(ctx, placeName)
}
