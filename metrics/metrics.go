// Package metrics exposes pipeline counters on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "track_cache_hits_total",
		Help: "Track cache lookups that found an entry.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "track_cache_misses_total",
		Help: "Track cache lookups that missed.",
	})
	UpstreamSearches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstream_searches_total",
		Help: "Catalog search requests issued upstream.",
	})
	UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_fetches_total",
		Help: "Raw audio fetches issued upstream, by result.",
	}, []string{"result"})
	TranscodeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcode_outcomes_total",
		Help: "Which step of the shrink strategy produced each output.",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
