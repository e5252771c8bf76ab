package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AdapterRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoctx_adapter_requests_total",
		Help: "Total upstream adapter calls",
	}, []string{"provider"})
	AdapterFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoctx_adapter_fail_total",
		Help: "Total upstream adapter calls collapsed to unavailable",
	}, []string{"provider"})
	AdapterDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoctx_adapter_duration_ms",
		Help:    "Upstream adapter call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"provider"})
	SnapshotBuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoctx_snapshot_builds_total",
		Help: "Total context snapshot builds",
	})
	SnapshotDegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoctx_snapshot_degraded_total",
		Help: "Total snapshot builds that produced at least one warning",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoctx_cache_hits_total",
		Help: "Snapshot cache hits by tier",
	}, []string{"tier"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoctx_cache_misses_total",
		Help: "Snapshot cache misses by tier",
	}, []string{"tier"})
	ReportOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoctx_report_outcome_total",
		Help: "Report generation outcomes (accepted, rejected, fallback)",
	}, []string{"outcome"})
	ReportLogDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoctx_reportlog_dropped_total",
		Help: "Report log entries dropped because the queue was full",
	})
)

func init() {
	prometheus.MustRegister(
		AdapterRequestsTotal,
		AdapterFailTotal,
		AdapterDurationMs,
		SnapshotBuildsTotal,
		SnapshotDegradedTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		ReportOutcomeTotal,
		ReportLogDroppedTotal,
	)
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }
