package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eclipse-os/eclipsefs/pkg/fs/cache"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.Gauge
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics instance
// for the named eviction strategy.
//
// Returns nil if metrics are not enabled (InitRegistry not called);
// passing nil to a cache strategy results in zero overhead.
func NewCacheMetrics(strategy string) cache.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	labels := prometheus.Labels{"strategy": strategy}

	return &cacheMetrics{
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "eclipsefs_cache_hits_total",
			Help:        "Total number of node cache lookups served from memory",
			ConstLabels: labels,
		}),
		misses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "eclipsefs_cache_misses_total",
			Help:        "Total number of node cache lookups that fell through to disk",
			ConstLabels: labels,
		}),
		evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "eclipsefs_cache_evictions_total",
			Help:        "Total number of nodes evicted under capacity pressure",
			ConstLabels: labels,
		}),
		entries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name:        "eclipsefs_cache_entries",
			Help:        "Current number of cache-resident nodes",
			ConstLabels: labels,
		}),
	}
}

func (m *cacheMetrics) ObserveHit()      { m.hits.Inc() }
func (m *cacheMetrics) ObserveMiss()     { m.misses.Inc() }
func (m *cacheMetrics) ObserveEviction() { m.evictions.Inc() }
func (m *cacheMetrics) SetEntries(n int) { m.entries.Set(float64(n)) }
