package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/geostreamdb/geostream/cache"
	"github.com/geostreamdb/geostream/index"
	"github.com/geostreamdb/geostream/model"
	"github.com/geostreamdb/geostream/source"
)

// State describes the lifecycle of the ingestion loop.
type State int32

const (
	// StateNew means Run has not been called yet.
	StateNew State = iota
	// StateRunning means the loop is pulling from the feed.
	StateRunning
	// StateStopped means the loop has exited.
	StateStopped
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Collector receives ingestion-side measurements. The root package's
// metrics collectors satisfy it.
type Collector interface {
	// RecordIngest is called once per processed record; err is non-nil
	// when the record failed to index.
	RecordIngest(duration time.Duration, err error)
	// RecordFetchError is called when pulling from the feed fails.
	RecordFetchError()
	// RecordNotify is called after a listener fan-out round.
	RecordNotify(listeners int, duration time.Duration)
}

// Backoff retry window for feed fetch failures. The loop retries forever
// with capped exponential backoff; it terminates only on shutdown. Failure
// visibility comes from the log stream and RecordFetchError, not from the
// loop exiting.
const (
	DefaultBackoffMin = 100 * time.Millisecond
	DefaultBackoffMax = 5 * time.Second
)

// Config wires a Loop to its collaborators.
type Config struct {
	Source   source.Source
	Index    index.Spatial
	Cache    *cache.TTL[string, model.Entry]
	Registry *Registry

	Logger    *slog.Logger
	Collector Collector

	// Pool, when non-nil, offloads listener invocation to a bounded
	// worker pool. This isolates ingestion from slow listeners at the
	// cost of the cross-listener ordering guarantee.
	Pool *WorkerPool

	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Loop is the single background worker that pulls features from the feed,
// updates the spatial index and the expiring cache, and fans out to
// listeners. Per-record failures are logged and swallowed; the loop exits
// only when its context is cancelled.
type Loop struct {
	cfg   Config
	state atomic.Int32
}

// NewLoop creates a loop. The caller starts it with Run, typically on a
// dedicated goroutine.
func NewLoop(cfg Config) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultBackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = DefaultBackoffMax
	}
	return &Loop{cfg: cfg}
}

// State reports the loop's lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run drives the fetch → index-and-cache → notify cycle until ctx is
// cancelled. The feed fetch is the only blocking point; everything else in
// an iteration completes quickly.
func (l *Loop) Run(ctx context.Context) error {
	l.state.Store(int32(StateRunning))
	defer l.state.Store(int32(StateStopped))

	backoff := l.cfg.BackoffMin

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f, err := l.cfg.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if l.cfg.Collector != nil {
				l.cfg.Collector.RecordFetchError()
			}
			l.cfg.Logger.Warn("feed fetch failed", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, l.cfg.BackoffMax)
			continue
		}
		backoff = l.cfg.BackoffMin

		if f == nil {
			// No record this cycle; not end-of-stream.
			continue
		}

		l.ingestOne(ctx, f)
	}
}

// ingestOne indexes and caches a single feature, then notifies listeners.
// The index insert happens before the cache put: readers treat the cache as
// authoritative for existence, so anything visible there already has its
// index entry.
func (l *Loop) ingestOne(ctx context.Context, f *model.Feature) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingest panic: %v", r)
			l.cfg.Logger.Error("record processing panicked",
				"id", f.ID, "panic", r, "stack", string(debug.Stack()))
		}
		if l.cfg.Collector != nil {
			l.cfg.Collector.RecordIngest(time.Since(start), err)
		}
	}()

	entry := model.NewEntry(f)
	if err = l.cfg.Index.Insert(entry.Bound, f); err != nil {
		l.cfg.Logger.Warn("record rejected by spatial index", "id", f.ID, "error", err)
		return
	}
	l.cfg.Cache.Put(f.ID, entry)
	l.cfg.Logger.Debug("record ingested", "id", f.ID)

	l.notify(ctx, f)
}

// notify invokes registered listeners whose predicate accepts f. A failing
// listener never prevents the remaining listeners from being notified.
func (l *Loop) notify(ctx context.Context, f *model.Feature) {
	regs := l.cfg.Registry.snapshot()
	if len(regs) == 0 {
		return
	}

	start := time.Now()
	delivered := 0
	for _, reg := range regs {
		if reg.pred != nil && !reg.pred.Matches(f) {
			continue
		}
		delivered++

		if l.cfg.Pool != nil {
			reg := reg
			if err := l.cfg.Pool.Submit(ctx, func() { l.deliver(reg.listener, f) }); err != nil {
				l.cfg.Logger.Warn("listener dispatch failed", "id", f.ID, "error", err)
			}
			continue
		}
		l.deliver(reg.listener, f)
	}

	if l.cfg.Collector != nil {
		l.cfg.Collector.RecordNotify(delivered, time.Since(start))
	}
}

func (l *Loop) deliver(listener Listener, f *model.Feature) {
	defer func() {
		if r := recover(); r != nil {
			l.cfg.Logger.Error("listener panicked", "id", f.ID, "panic", r)
		}
	}()
	listener.OnFeature(f)
}

// sleepCtx waits for d, reporting false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
