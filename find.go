// This file implements the fluent query API for Store instances.
package geostream

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream/filter"
	"github.com/geostreamdb/geostream/model"
)

// Find creates a new fluent query builder.
//
// Example:
//
//	features, err := st.Find().
//	    Within(bound).
//	    Filter(filter.TagEq("kind", "bus")).
//	    Execute(ctx)
//
//	n, err := st.Find().IDs("a", "b").Count(ctx)
func (s *Store) Find() *FindBuilder {
	return &FindBuilder{store: s}
}

// FindBuilder is a fluent builder for constructing queries.
type FindBuilder struct {
	store *Store

	ids      []string
	bound    orb.Bound
	hasBound bool
	pred     filter.Predicate
}

// IDs restricts the query to the given feature identifiers. When set, the
// query resolves through the cache directly, without touching the spatial
// index.
func (fb *FindBuilder) IDs(ids ...string) *FindBuilder {
	fb.ids = append(fb.ids, ids...)
	return fb
}

// Within restricts the query to features whose envelope intersects bound.
func (fb *FindBuilder) Within(bound orb.Bound) *FindBuilder {
	fb.bound = bound
	fb.hasBound = true
	return fb
}

// Filter applies a residual predicate to every candidate.
func (fb *FindBuilder) Filter(pred filter.Predicate) *FindBuilder {
	fb.pred = pred
	return fb
}

// Execute runs the query and returns the matching live features. No
// ordering guarantee is made.
func (fb *FindBuilder) Execute(ctx context.Context) ([]*model.Feature, error) {
	s := fb.store
	start := time.Now()

	results, err := fb.execute(ctx)
	s.collector.RecordQuery(len(results), time.Since(start), err)
	return results, err
}

// Count runs the query and returns the number of matching features. It is
// defined as the length of Execute's result; there is no separate counting
// path.
func (fb *FindBuilder) Count(ctx context.Context) (int, error) {
	results, err := fb.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

func (fb *FindBuilder) execute(ctx context.Context) ([]*model.Feature, error) {
	s := fb.store
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(fb.ids) > 0 {
		return fb.byIDs(), nil
	}
	return fb.scan(), nil
}

// byIDs is the identifier fast path: one cache lookup per requested ID,
// skipping absent and expired entries.
func (fb *FindBuilder) byIDs() []*model.Feature {
	s := fb.store

	results := make([]*model.Feature, 0, len(fb.ids))
	for _, id := range fb.ids {
		e, ok := s.cache.Get(id)
		if !ok {
			continue
		}
		if fb.hasBound && !e.Bound.Intersects(fb.bound) {
			continue
		}
		if fb.pred != nil && !fb.pred.Matches(e.Feature) {
			continue
		}
		results = append(results, e.Feature)
	}
	return results
}

// scan is the general path: envelope candidates from the spatial index,
// residual predicate per candidate, then a liveness check against the
// cache. The liveness check compares instances, not IDs, so a hit that
// expired mid-scan or a stale generation racing its replacement is
// excluded rather than returned.
func (fb *FindBuilder) scan() []*model.Feature {
	s := fb.store

	bound := s.opts.worldBound
	if fb.hasBound {
		bound = fb.bound
	}

	candidates := s.idx.Search(bound)
	results := make([]*model.Feature, 0, len(candidates))
	for _, f := range candidates {
		if fb.pred != nil && !fb.pred.Matches(f) {
			continue
		}
		e, ok := s.cache.Get(f.ID)
		if !ok || e.Feature != f {
			continue
		}
		results = append(results, f)
	}
	return results
}
