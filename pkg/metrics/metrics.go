package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridrecall_searches_total",
		Help: "Total number of hybrid searches by outcome",
	}, []string{"status"})

	SourceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridrecall_source_failures_total",
		Help: "Total number of failed calls to a search source",
	}, []string{"source"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hybridrecall_search_duration_seconds",
		Help:    "Latency of hybrid searches, including both sources and fusion",
		Buckets: prometheus.DefBuckets,
	})

	FusedResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hybridrecall_fused_results",
		Help:    "Number of distinct documents produced by fusion before truncation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
