// Package metrics exposes bot and cache activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/songlink/linkreader/internal/cache"
)

const namespace = "linkreader"

// CacheStats is satisfied by *cache.PlaylistCache
type CacheStats interface {
	Stats() cache.Stats
}

// Metrics holds the bot's counters. A nil *Metrics records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	linksSeen   prometheus.Counter
	tracksAdded prometheus.Counter
	commands    *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// New creates a registry with the process collectors, the cache collector and the bot counters
func New(stats CacheStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		linksSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_links_seen_total",
			Help:      "Track links found in chat messages.",
		}),
		tracksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_added_total",
			Help:      "Tracks appended to playlists.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Bot commands handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_events_total",
			Help:      "Gateway events handled, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newCacheCollector(stats),
		m.linksSeen,
		m.tracksAdded,
		m.commands,
		m.events,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) LinksSeen(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linksSeen.Add(float64(n))
}

func (m *Metrics) TracksAdded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tracksAdded.Add(float64(n))
}

// CommandHandled counts a command; outcome is "ok", "denied" or "error"
func (m *Metrics) CommandHandled(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) EventHandled(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}
