// Package metrics exposes crawl progress as Prometheus metrics.
//
// A nil *Collector is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitemapgen"

// Collector holds the crawl metrics in a private registry.
type Collector struct {
	registry *prometheus.Registry

	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	discoveredTotal prometheus.Counter
	duplicatesTotal prometheus.Counter
	queueDepth      prometheus.Gauge
	activeWorkers   prometheus.Gauge
}

// NewCollector creates a collector and registers its metrics along with
// the Go runtime collectors.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "HTTP requests issued by crawl workers",
		},
		[]string{"method", "status"},
	)
	c.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one HTTP request including body download",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	c.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "URLs re-queued after no reply or a 5xx answer",
	})
	c.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "URLs that ended with a terminal error",
		},
		[]string{"kind"},
	)
	c.discoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "urls_discovered_total",
		Help:      "Distinct URLs added to the frontier",
	})
	c.duplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "urls_duplicate_total",
		Help:      "Discoveries of URLs already in the frontier",
	})
	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "URLs waiting to be fetched",
	})
	c.activeWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Workers that are not parked",
	})

	c.registry.MustRegister(
		c.fetchesTotal,
		c.fetchDuration,
		c.retriesTotal,
		c.errorsTotal,
		c.discoveredTotal,
		c.duplicatesTotal,
		c.queueDepth,
		c.activeWorkers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Fetch records one request. status is the numeric code or "no_reply".
func (c *Collector) Fetch(method, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.fetchesTotal.WithLabelValues(method, status).Inc()
	c.fetchDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Retry counts a re-queued URL.
func (c *Collector) Retry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// Error counts a terminal per-URL error of the given kind.
func (c *Collector) Error(kind string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// Discovered counts a new URL record.
func (c *Collector) Discovered() {
	if c == nil {
		return
	}
	c.discoveredTotal.Inc()
}

// Duplicate counts a rediscovered URL.
func (c *Collector) Duplicate() {
	if c == nil {
		return
	}
	c.duplicatesTotal.Inc()
}

// SetQueue publishes the queue length and the number of active workers.
func (c *Collector) SetQueue(depth, active int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
	c.activeWorkers.Set(float64(active))
}
