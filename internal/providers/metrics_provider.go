package providers

import (
	"attendees/internal/structures"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObservePersistenceDuration(duration time.Duration)
	IncRemoteCallFailures(operation string)
	ObserveFanOutDuration(operation string, duration time.Duration)
	IncNotificationsDropped()
}

// SizeReporter exposes the number of records a unit holds: attendee entries
// on a shard, registered shards on the coordinator.
type SizeReporter interface {
	Size() int
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	persistenceDuration prometheus.Histogram
	remoteFailures      *prometheus.CounterVec
	fanOutDuration      *prometheus.HistogramVec
	notificationsDrop   prometheus.Counter
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncRemoteCallFailures(operation string) {
	m.remoteFailures.WithLabelValues(operation).Inc()
}

func (m *MetricsProvider) ObserveFanOutDuration(operation string, duration time.Duration) {
	m.fanOutDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncNotificationsDropped() {
	m.notificationsDrop.Inc()
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config, sizes SizeReporter) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	m := &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attendees_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendees_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attendees_cache_hits_total",
			Help: "Total number of fan-out cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attendees_cache_misses_total",
			Help: "Total number of fan-out cache misses",
		}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendees_persistence_duration_seconds",
			Help:    "Duration of snapshot operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		remoteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attendees_remote_call_failures_total",
			Help: "Total number of failed calls to other units",
		}, []string{"operation"}),

		fanOutDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendees_fanout_duration_seconds",
			Help:    "Duration of coordinator fan-out reads in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		notificationsDrop: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attendees_notifications_dropped_total",
			Help: "Attendee count updates dropped because the queue was full",
		}),
	}

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "attendees_records",
		Help:        "Number of records held by this unit",
		ConstLabels: prometheus.Labels{"role": conf.Node.Role},
	}, func() float64 {
		return float64(sizes.Size())
	})

	return m
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (n *noopMetrics) IncRemoteCallFailures(_ string)                   {}
func (n *noopMetrics) ObserveFanOutDuration(_ string, _ time.Duration)  {}
func (n *noopMetrics) IncNotificationsDropped()                         {}

// DeferredSize lets the records gauge be registered before the service owning
// the records exists. It reports zero until Bind is called.
type DeferredSize struct {
	mu       sync.RWMutex
	reporter SizeReporter
}

func NewDeferredSize() *DeferredSize {
	return &DeferredSize{}
}

func (d *DeferredSize) Bind(r SizeReporter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reporter = r
}

func (d *DeferredSize) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.reporter == nil {
		return 0
	}
	return d.reporter.Size()
}
