// Package metrics exposes the application's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwipesRecorded counts swipes by direction.
	SwipesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homematch_swipes_recorded_total",
		Help: "Swipes recorded, labelled by direction.",
	}, []string{"direction"})

	// ListingsEnriched counts fully enriched listings.
	ListingsEnriched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homematch_listings_enriched_total",
		Help: "Listings that completed enrichment.",
	})

	// EnrichmentFailures counts per-listing enrichment steps that
	// degraded instead of completing.
	EnrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homematch_enrichment_failures_total",
		Help: "Enrichment steps that failed and degraded, labelled by step.",
	}, []string{"step"})

	// PatternTopUps counts pattern top-up fetches that ran.
	PatternTopUps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homematch_pattern_topups_total",
		Help: "Pattern top-up fetches started.",
	})

	// CacheHits and CacheMisses count derived-cache lookups by namespace.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homematch_cache_hits_total",
		Help: "Derived-cache hits, labelled by namespace.",
	}, []string{"namespace"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homematch_cache_misses_total",
		Help: "Derived-cache misses, labelled by namespace.",
	}, []string{"namespace"})
)
