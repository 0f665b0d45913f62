// Package metrics exposes engine and HTTP telemetry as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements document.Observer and cache.Observer.
type Metrics struct {
	Parses          *prometheus.CounterVec
	ParseDuration   *prometheus.HistogramVec
	Fallbacks       *prometheus.CounterVec
	CacheEvents     *prometheus.CounterVec
	LiveBuffers     prometheus.Gauge
	Notifications   *prometheus.CounterVec
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Parses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zortex_parses_total",
				Help: "Document parses by kind",
			},
			[]string{"kind"},
		),
		ParseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zortex_parse_duration_seconds",
				Help:    "Document parse duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"kind"},
		),
		Fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zortex_incremental_fallbacks_total",
				Help: "Incremental parses replaced by a full parse, by reason",
			},
			[]string{"reason"},
		),
		CacheEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zortex_file_cache_events_total",
				Help: "File cache hits, misses, evictions and stale entries",
			},
			[]string{"event"},
		),
		LiveBuffers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "zortex_live_buffers",
				Help: "Number of open live buffers",
			},
		),
		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zortex_change_notifications_total",
				Help: "Change events by delivery outcome",
			},
			[]string{"outcome"},
		),
		RequestCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zortex_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "zortex_http_request_duration_seconds",
				Help: "HTTP request duration in seconds",
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) ObserveParse(kind string, d time.Duration) {
	m.Parses.WithLabelValues(kind).Inc()
	m.ParseDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveFallback(reason string) {
	m.Fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCache(event string) {
	m.CacheEvents.WithLabelValues(event).Inc()
}

// ObserveNotification counts a change event as "delivered" or "dropped".
func (m *Metrics) ObserveNotification(outcome string) {
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetLiveBuffers(n int) {
	m.LiveBuffers.Set(float64(n))
}
