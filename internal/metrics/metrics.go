// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingsTotal counts listing requests by outcome.
	ListingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omero_repo",
		Name:      "listings_total",
		Help:      "Listing requests served, labelled by outcome.",
	}, []string{"outcome"})

	// CacheHits counts reference-cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omero_repo",
		Name:      "cache_hits_total",
		Help:      "Reference cache hits.",
	})

	// CacheMisses counts reference-cache misses that reached populate.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omero_repo",
		Name:      "cache_misses_total",
		Help:      "Reference cache misses.",
	})

	// CachePopulates counts successful populates.
	CachePopulates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omero_repo",
		Name:      "cache_populates_total",
		Help:      "Successful reference cache populates.",
	})

	// SyncOutcomes counts per-reference sync results.
	SyncOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omero_repo",
		Name:      "sync_references_total",
		Help:      "Reference sync sweep results, labelled by outcome.",
	}, []string{"outcome"})

	// RemoteRequestDuration observes remote call latencies.
	RemoteRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "omero_repo",
		Name:      "remote_request_duration_seconds",
		Help:      "Latency of calls to the OMERO server.",
		Buckets:   prometheus.DefBuckets,
	})
)
