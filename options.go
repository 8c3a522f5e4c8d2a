package geostream

import (
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream/index"
	"github.com/geostreamdb/geostream/model"
)

// DefaultTTL is the cache window after which an ingested feature becomes
// invisible.
const DefaultTTL = 10 * time.Second

type options struct {
	ttl             time.Duration
	sweepInterval   time.Duration
	index           index.Spatial
	logger          *Logger
	collector       Collector
	listenerWorkers int
	worldBound      orb.Bound
	backoffMin      time.Duration
	backoffMax      time.Duration
}

// Option configures Open behavior.
type Option func(*options)

// WithTTL sets the time a feature stays visible after its (re)insertion.
// Defaults to DefaultTTL. Open fails with ErrInvalidTTL when ttl is not
// positive.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithSweepInterval overrides how often the cache sweeper runs. The default
// is half the TTL. Sweeping only affects when memory is reclaimed; expired
// features are invisible to reads either way.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = interval
	}
}

// WithSpatialIndex replaces the default R-tree index, e.g. with
// grid.New(cellSize) for dense point feeds.
func WithSpatialIndex(idx index.Spatial) Option {
	return func(o *options) {
		if idx != nil {
			o.index = idx
		}
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithCollector configures a metrics collector. Pass nil to disable
// metrics collection.
func WithCollector(c Collector) Option {
	return func(o *options) {
		if c == nil {
			c = NopCollector{}
		}
		o.collector = c
	}
}

// WithListenerWorkers offloads listener invocation to a pool of n workers.
// This keeps slow listeners from throttling ingestion, at the cost of the
// cross-listener ordering guarantee. The default (0) notifies listeners
// synchronously on the loop goroutine.
func WithListenerWorkers(n int) Option {
	return func(o *options) {
		o.listenerWorkers = n
	}
}

// WithWorldBound overrides the envelope used for spatially-unconstrained
// queries. The default is the whole lon/lat domain.
func WithWorldBound(bound orb.Bound) Option {
	return func(o *options) {
		o.worldBound = bound
	}
}

// WithFetchBackoff tunes the retry window for feed fetch failures.
func WithFetchBackoff(min, max time.Duration) Option {
	return func(o *options) {
		o.backoffMin = min
		o.backoffMax = max
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		ttl:        DefaultTTL,
		logger:     NoopLogger(),
		collector:  NopCollector{},
		worldBound: model.WorldBound,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
