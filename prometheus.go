package geostream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/geostreamdb/geostream/cache"
)

// PrometheusCollector implements Collector on top of Prometheus metrics.
// Serve the registry with promhttp in the embedding process to expose them.
type PrometheusCollector struct {
	ingested      prometheus.Counter
	ingestErrors  prometheus.Counter
	ingestSeconds prometheus.Histogram
	fetchErrors   prometheus.Counter
	notifications prometheus.Counter
	evictions     *prometheus.CounterVec
	querySeconds  prometheus.Histogram
	queryResults  prometheus.Histogram
	queryErrors   prometheus.Counter
}

// NewPrometheusCollector registers geostream metrics against reg,
// defaulting to the global Prometheus registry when nil.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostream_ingested_total",
			Help: "Total number of features accepted by the ingestion loop.",
		}),
		ingestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostream_ingest_errors_total",
			Help: "Total number of records that failed to index.",
		}),
		ingestSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geostream_ingest_duration_seconds",
			Help:    "Per-record ingestion latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostream_fetch_errors_total",
			Help: "Total number of failed feed fetches.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostream_listener_notifications_total",
			Help: "Total number of listener deliveries.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geostream_cache_evictions_total",
			Help: "Total number of cache evictions, labeled by cause.",
		}, []string{"cause"}),
		querySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geostream_query_duration_seconds",
			Help:    "Query latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		queryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geostream_query_results",
			Help:    "Number of features returned per query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		queryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostream_query_errors_total",
			Help: "Total number of failed queries.",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.ingested, c.ingestErrors, c.ingestSeconds, c.fetchErrors,
		c.notifications, c.evictions, c.querySeconds, c.queryResults,
		c.queryErrors,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordIngest implements Collector.
func (c *PrometheusCollector) RecordIngest(duration time.Duration, err error) {
	if err != nil {
		c.ingestErrors.Inc()
		return
	}
	c.ingested.Inc()
	c.ingestSeconds.Observe(duration.Seconds())
}

// RecordFetchError implements Collector.
func (c *PrometheusCollector) RecordFetchError() {
	c.fetchErrors.Inc()
}

// RecordNotify implements Collector.
func (c *PrometheusCollector) RecordNotify(listeners int, _ time.Duration) {
	c.notifications.Add(float64(listeners))
}

// RecordEviction implements Collector.
func (c *PrometheusCollector) RecordEviction(cause cache.RemovalCause) {
	c.evictions.WithLabelValues(cause.String()).Inc()
}

// RecordQuery implements Collector.
func (c *PrometheusCollector) RecordQuery(results int, duration time.Duration, err error) {
	if err != nil {
		c.queryErrors.Inc()
		return
	}
	c.querySeconds.Observe(duration.Seconds())
	c.queryResults.Observe(float64(results))
}
