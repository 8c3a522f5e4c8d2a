package geostream

import (
	"sync/atomic"
	"time"

	"github.com/geostreamdb/geostream/cache"
)

// Collector defines an interface for collecting operational metrics.
// Implement it to integrate with monitoring systems; PrometheusCollector is
// a ready-made implementation.
type Collector interface {
	// RecordIngest is called once per processed record; err is non-nil
	// when the record failed to index.
	RecordIngest(duration time.Duration, err error)

	// RecordFetchError is called when pulling from the feed fails.
	RecordFetchError()

	// RecordNotify is called after each listener fan-out round with the
	// number of listeners that accepted the record.
	RecordNotify(listeners int, duration time.Duration)

	// RecordEviction is called once per cache entry removal.
	RecordEviction(cause cache.RemovalCause)

	// RecordQuery is called after each query with the result size.
	RecordQuery(results int, duration time.Duration, err error)
}

// NopCollector is a no-op implementation of Collector.
type NopCollector struct{}

func (NopCollector) RecordIngest(time.Duration, error)     {}
func (NopCollector) RecordFetchError()                     {}
func (NopCollector) RecordNotify(int, time.Duration)       {}
func (NopCollector) RecordEviction(cache.RemovalCause)     {}
func (NopCollector) RecordQuery(int, time.Duration, error) {}

// BasicCollector provides simple in-memory metrics collection, useful for
// debugging and tests without external dependencies.
type BasicCollector struct {
	IngestCount      atomic.Int64
	IngestErrors     atomic.Int64
	IngestTotalNanos atomic.Int64
	FetchErrors      atomic.Int64
	NotifyCount      atomic.Int64
	NotifyListeners  atomic.Int64
	Evictions        atomic.Int64
	Expirations      atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
}

// RecordIngest implements Collector.
func (b *BasicCollector) RecordIngest(duration time.Duration, err error) {
	b.IngestCount.Add(1)
	b.IngestTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IngestErrors.Add(1)
	}
}

// RecordFetchError implements Collector.
func (b *BasicCollector) RecordFetchError() {
	b.FetchErrors.Add(1)
}

// RecordNotify implements Collector.
func (b *BasicCollector) RecordNotify(listeners int, _ time.Duration) {
	b.NotifyCount.Add(1)
	b.NotifyListeners.Add(int64(listeners))
}

// RecordEviction implements Collector.
func (b *BasicCollector) RecordEviction(cause cache.RemovalCause) {
	b.Evictions.Add(1)
	if cause == cache.CauseExpired {
		b.Expirations.Add(1)
	}
}

// RecordQuery implements Collector.
func (b *BasicCollector) RecordQuery(results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// Stats is a snapshot of BasicCollector state.
type Stats struct {
	IngestCount     int64
	IngestErrors    int64
	IngestAvgNanos  int64
	FetchErrors     int64
	NotifyCount     int64
	NotifyListeners int64
	Evictions       int64
	Expirations     int64
	QueryCount      int64
	QueryErrors     int64
	QueryAvgNanos   int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicCollector) GetStats() Stats {
	return Stats{
		IngestCount:     b.IngestCount.Load(),
		IngestErrors:    b.IngestErrors.Load(),
		IngestAvgNanos:  avgNanos(b.IngestTotalNanos.Load(), b.IngestCount.Load()),
		FetchErrors:     b.FetchErrors.Load(),
		NotifyCount:     b.NotifyCount.Load(),
		NotifyListeners: b.NotifyListeners.Load(),
		Evictions:       b.Evictions.Load(),
		Expirations:     b.Expirations.Load(),
		QueryCount:      b.QueryCount.Load(),
		QueryErrors:     b.QueryErrors.Load(),
		QueryAvgNanos:   avgNanos(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}
