// Package metrics exposes the engine's Prometheus instrumentation behind a
// small recorder interface, with a no-op variant for when metrics are off.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync outcomes reported to ObserveSync.
const (
	OutcomeNoop        = "noop"
	OutcomeFastForward = "fast_forward"
	OutcomeMerge       = "merge"
	OutcomeError       = "error"
)

type Recorder interface {
	IncAppends(channel string)
	ObserveSync(outcome string, duration time.Duration)
	AddObjectsFetched(n int)
	IncCacheHits()
	IncCacheMisses()
	SetChannels(n int)
	IncRequests(endpoint string, status int)
}

type PrometheusRecorder struct {
	appends        *prometheus.CounterVec
	syncs          *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	objectsFetched prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	channels       prometheus.Gauge
	requests       *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhist_appends_total",
			Help: "Messages appended locally, per channel",
		}, []string{"channel"}),

		syncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhist_syncs_total",
			Help: "Synchronization attempts by outcome",
		}, []string{"outcome"}),

		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chanhist_sync_duration_seconds",
			Help:    "Duration of synchronization attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		objectsFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "chanhist_objects_fetched_total",
			Help: "Commit objects received from peers and newly stored",
		}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "chanhist_commit_cache_hits_total",
			Help: "Commit cache hits",
		}),

		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "chanhist_commit_cache_misses_total",
			Help: "Commit cache misses",
		}),

		channels: f.NewGauge(prometheus.GaugeOpts{
			Name: "chanhist_channels",
			Help: "Channels registered in the local registry",
		}),

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhist_http_requests_total",
			Help: "History server requests by endpoint and status class",
		}, []string{"endpoint", "status"}),
	}
}

func (m *PrometheusRecorder) IncAppends(channel string) {
	m.appends.WithLabelValues(channel).Inc()
}

func (m *PrometheusRecorder) ObserveSync(outcome string, duration time.Duration) {
	m.syncs.WithLabelValues(outcome).Inc()
	m.syncDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *PrometheusRecorder) AddObjectsFetched(n int) {
	m.objectsFetched.Add(float64(n))
}

func (m *PrometheusRecorder) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *PrometheusRecorder) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *PrometheusRecorder) SetChannels(n int) {
	m.channels.Set(float64(n))
}

func (m *PrometheusRecorder) IncRequests(endpoint string, status int) {
	m.requests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Noop returns a recorder that discards everything.
func Noop() Recorder { return noopRecorder{} }

type noopRecorder struct{}

func (noopRecorder) IncAppends(string)                 {}
func (noopRecorder) ObserveSync(string, time.Duration) {}
func (noopRecorder) AddObjectsFetched(int)             {}
func (noopRecorder) IncCacheHits()                     {}
func (noopRecorder) IncCacheMisses()                   {}
func (noopRecorder) SetChannels(int)                   {}
func (noopRecorder) IncRequests(string, int)           {}
