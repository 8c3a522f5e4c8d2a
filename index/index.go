// Package index provides the spatial index contract used by geostream.
//
// Implementations live in subpackages: rtree (R-tree, the default) and grid
// (fixed-cell grid over Roaring bitmaps). Both are safe for arbitrary
// concurrent readers and a single concurrent writer stream; a coarse lock
// around the structure is an accepted design for indexes of this kind.
package index

import (
	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream/model"
)

// Spatial maps 2D bounding envelopes to features.
//
// Entries are identified by the feature instance, not the feature ID:
// Remove unregisters the exact (bound, feature) pair that was inserted, so
// removing a stale generation can never unregister a live replacement that
// shares its ID.
type Spatial interface {
	// Insert registers the feature under the given envelope.
	Insert(bound orb.Bound, f *model.Feature) error

	// Remove unregisters the exact (bound, feature) pair. Removing an
	// absent entry is a no-op and reports false; it is never fatal.
	Remove(bound orb.Bound, f *model.Feature) bool

	// Search returns every feature whose registered envelope intersects
	// bound. No ordering guarantee is made.
	Search(bound orb.Bound) []*model.Feature

	// Len reports the number of registered entries.
	Len() int
}
