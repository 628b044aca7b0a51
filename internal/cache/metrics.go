package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantdl_cache_hits_total",
		Help: "Number of cache lookups served without invoking the loader.",
	})
	misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantdl_cache_misses_total",
		Help: "Number of cache lookups that invoked the loader.",
	})
	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantdl_cache_evictions_total",
		Help: "Number of entries evicted to honour the size budget.",
	})
)
