package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// cacheCollector reads cache statistics at scrape time
type cacheCollector struct {
	stats CacheStats

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
	capacity  *prometheus.Desc
}

func newCacheCollector(stats CacheStats) *cacheCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "playlist_cache", name), help, nil, nil)
	}
	return &cacheCollector{
		stats:     stats,
		hits:      desc("hits_total", "Membership lookups served from the cache."),
		misses:    desc("misses_total", "Membership lookups that had to fetch the playlist."),
		evictions: desc("evictions_total", "Playlists evicted to make room."),
		size:      desc("entries", "Playlists currently cached."),
		capacity:  desc("capacity", "Maximum number of cached playlists."),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.size
	ch <- c.capacity
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
}
