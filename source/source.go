// Package source defines the feed consumed by the ingestion loop and ships
// a few ready-made implementations: Chan (in-process), Slice (fixed
// records), Replay (NDJSON file replay, optionally gzipped and rate-paced)
// and Watch (fsnotify directory tail).
package source

import (
	"context"

	"github.com/geostreamdb/geostream/model"
)

// Source is an external producer of features.
//
// Next blocks until a feature is available, the cycle yields nothing, or
// ctx is cancelled. A (nil, nil) return means "no record this cycle, keep
// looping", not end-of-stream. Implementations must honor ctx
// cancellation in Next; a source that ignores ctx can stall store shutdown
// until it next yields.
//
// Sources that hold resources may additionally implement io.Closer; the
// store closes them on shutdown.
type Source interface {
	// Init performs one-time setup. It is called exactly once, before the
	// ingestion loop starts.
	Init(ctx context.Context) error

	// Next returns the next feature from the feed.
	Next(ctx context.Context) (*model.Feature, error)
}

// Chan is a channel-backed source, mainly for tests and in-process
// embedding. Send features on C; closing C makes Next block until ctx is
// cancelled.
type Chan struct {
	C chan *model.Feature
}

// NewChan creates a channel source with the given buffer size.
func NewChan(buffer int) *Chan {
	return &Chan{C: make(chan *model.Feature, buffer)}
}

// Init implements Source.
func (s *Chan) Init(ctx context.Context) error { return nil }

// Next implements Source.
func (s *Chan) Next(ctx context.Context) (*model.Feature, error) {
	select {
	case f, ok := <-s.C:
		if !ok {
			// Drained; park until shutdown.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Slice yields a fixed set of features in order, then blocks until ctx is
// cancelled.
type Slice struct {
	features []*model.Feature
	next     int
}

// NewSlice creates a source over the given features.
func NewSlice(features ...*model.Feature) *Slice {
	return &Slice{features: features}
}

// Init implements Source.
func (s *Slice) Init(ctx context.Context) error { return nil }

// Next implements Source. Slice is only safe for the single ingestion
// goroutine.
func (s *Slice) Next(ctx context.Context) (*model.Feature, error) {
	if s.next >= len(s.features) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := s.features[s.next]
	s.next++
	return f, nil
}
