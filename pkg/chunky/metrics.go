package chunky

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpapi_runs_total",
		Help: "Total chunk runs by terminal state",
	}, []string{"state"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mpapi_run_duration_seconds",
		Help:    "Chunk run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpapi_chunks_total",
		Help: "Total chunks processed by outcome (written, resumed, empty, failed)",
	}, []string{"outcome"})

	relatedFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpapi_related_fetches_total",
		Help: "Total related record fetches by module",
	}, []string{"module"})

	relatedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpapi_related_items_total",
		Help: "Total related records merged into chunks by module",
	}, []string{"module"})
)
