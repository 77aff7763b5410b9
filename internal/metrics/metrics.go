// Package metrics holds the Prometheus collectors shared by the cache,
// baseline synchronizer and correlation checker. Collectors register with the
// default registry on package init and are served by the /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache request outcomes.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Baseline sync outcomes.
const (
	SyncAdded   = "added"
	SyncRemoved = "removed"
	SyncFailed  = "failed"
)

var (
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wqb_hub_cache_requests_total",
			Help: "Cache reads by outcome",
		},
		[]string{"result"},
	)
	syncEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wqb_hub_baseline_sync_entities_total",
			Help: "Baseline entities processed by the synchronizer, by outcome",
		},
		[]string{"outcome"},
	)
	baselineSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wqb_hub_baseline_entities",
			Help: "Entities currently tracked in the baseline cache",
		},
	)
	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wqb_hub_check_duration_seconds",
			Help:    "Duration of correlation checks in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wqb_hub_upstream_requests_total",
			Help: "Requests sent to the research platform, by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)
)

// CacheRequest records a cache read outcome.
func CacheRequest(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

// SyncEntities adds n entities with the given outcome.
func SyncEntities(outcome string, n int) {
	if n <= 0 {
		return
	}
	syncEntities.WithLabelValues(outcome).Add(float64(n))
}

// BaselineSize sets the tracked entity gauge.
func BaselineSize(n int) {
	baselineSize.Set(float64(n))
}

// ObserveCheck records how long a check took.
func ObserveCheck(mode string, started time.Time) {
	checkDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

// UpstreamRequest counts one platform request.
func UpstreamRequest(endpoint, status string) {
	upstreamRequests.WithLabelValues(endpoint, status).Inc()
}
