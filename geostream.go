// Package geostream provides a queryable, bounded-recency in-memory store
// for streaming geospatial features.
//
// A store continuously pulls georeferenced features from a source, keeps
// each one visible for a fixed TTL, and serves concurrent reads: point
// lookups by ID, spatial/attribute queries, and synchronous notification of
// registered listeners as features arrive.
//
// # Quick start
//
//	src := source.NewReplay("feed.ndjson.gz", source.WithRate(100))
//	st, err := geostream.Open(ctx, src,
//	    geostream.WithTTL(30*time.Second),
//	    geostream.WithLogLevel(slog.LevelInfo),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	st.RegisterListener(ingest.ListenerFunc(func(f *model.Feature) {
//	    fmt.Println("saw", f.ID)
//	}), nil)
//
//	features, err := st.Find().
//	    Within(orb.Bound{Min: orb.Point{13, 52}, Max: orb.Point{14, 53}}).
//	    Filter(filter.TagEq("kind", "bus")).
//	    Execute(ctx)
//
// The store is read/ingest-only: features enter through the feed and leave
// by TTL expiry. Write attempts against the query surface fail with
// ErrReadOnly.
package geostream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/geostreamdb/geostream/cache"
	"github.com/geostreamdb/geostream/filter"
	"github.com/geostreamdb/geostream/index"
	"github.com/geostreamdb/geostream/index/rtree"
	"github.com/geostreamdb/geostream/ingest"
	"github.com/geostreamdb/geostream/model"
	"github.com/geostreamdb/geostream/source"
)

// Store is a bounded-recency in-memory feature store fed by a single
// background ingestion loop. All methods are safe for concurrent use.
type Store struct {
	opts      options
	idx       index.Spatial
	cache     *cache.TTL[string, model.Entry]
	registry  *ingest.Registry
	loop      *ingest.Loop
	pool      *ingest.WorkerPool
	src       source.Source
	log       *Logger
	collector Collector

	cancel context.CancelFunc
	group  *errgroup.Group
	closed atomic.Bool
}

// Open validates the configuration, initializes the source, and starts the
// ingestion loop. ctx governs Open itself (source initialization); the
// returned store lives until Close.
func Open(ctx context.Context, src source.Source, optFns ...Option) (*Store, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	o := applyOptions(optFns)
	if o.ttl <= 0 {
		return nil, &ErrInvalidTTL{TTL: o.ttl.String()}
	}

	if err := src.Init(ctx); err != nil {
		return nil, err
	}

	s := &Store{
		opts:      o,
		registry:  ingest.NewRegistry(),
		src:       src,
		log:       o.logger,
		collector: o.collector,
	}

	s.idx = o.index
	if s.idx == nil {
		s.idx = rtree.New()
	}

	// Eviction keeps the index consistent with the cache: whatever leaves
	// the cache takes its exact (envelope, feature) registration with it.
	s.cache = cache.NewTTL[string, model.Entry](o.ttl, o.sweepInterval,
		cache.WithEvictionFunc(func(id string, e model.Entry, cause cache.RemovalCause) {
			removed := s.idx.Remove(e.Bound, e.Feature)
			if !removed {
				s.log.Debug("index entry already absent on eviction", "id", id, "cause", cause.String())
			}
			s.collector.RecordEviction(cause)
		}))

	if o.listenerWorkers > 0 {
		s.pool = ingest.NewWorkerPool(o.listenerWorkers)
	}

	s.loop = ingest.NewLoop(ingest.Config{
		Source:     src,
		Index:      s.idx,
		Cache:      s.cache,
		Registry:   s.registry,
		Logger:     s.log.Logger,
		Collector:  s.collector,
		Pool:       s.pool,
		BackoffMin: o.backoffMin,
		BackoffMax: o.backoffMax,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)
	s.group.Go(func() error {
		return s.loop.Run(runCtx)
	})

	s.log.Info("store opened", "ttl", o.ttl.String())

	return s, nil
}

// Get returns the live feature with the given ID, or false if it is absent
// or its TTL has elapsed.
func (s *Store) Get(id string) (*model.Feature, bool) {
	if s.closed.Load() {
		return nil, false
	}
	e, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return e.Feature, true
}

// Len reports the number of live features.
func (s *Store) Len() int {
	return s.cache.Len()
}

// RegisterListener subscribes to newly ingested features. A non-nil
// predicate gates delivery. Listeners registered mid-stream see only
// features ingested after registration.
func (s *Store) RegisterListener(l ingest.Listener, pred filter.Predicate) {
	s.registry.Register(l, pred)
}

// IngestState reports the lifecycle state of the ingestion loop.
func (s *Store) IngestState() ingest.State {
	return s.loop.State()
}

// Insert rejects external writes; the store mutates only via ingestion.
func (s *Store) Insert(context.Context, *model.Feature) error {
	return ErrReadOnly
}

// Delete rejects external writes; features leave the store by TTL expiry.
func (s *Store) Delete(context.Context, string) error {
	return ErrReadOnly
}

// Close stops ingestion and releases resources. It is idempotent. Shutdown
// is bounded-time as long as the source's Next honors context cancellation;
// a source that ignores ctx can stall Close until the feed next yields.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()
	err := s.group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if s.pool != nil {
		s.pool.Close()
	}
	s.cache.Close()

	if closer, ok := s.src.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	s.log.Info("store closed")

	return err
}
