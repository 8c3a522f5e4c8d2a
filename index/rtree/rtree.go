// Package rtree implements the geostream spatial index on top of an R-tree
// (github.com/dhconnelly/rtreego) guarded by a coarse RWMutex.
package rtree

import (
	"fmt"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream/model"
)

// minExtent inflates degenerate envelopes (points, axis-parallel lines) so
// they form valid R-tree rectangles.
const minExtent = 1e-9

// item is the spatial object stored in the tree. The envelope is frozen at
// insert time; identity is the feature pointer.
type item struct {
	rect    rtreego.Rect
	feature *model.Feature
}

func (it *item) Bounds() rtreego.Rect { return it.rect }

// Index is a thread-safe R-tree spatial index.
type Index struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
}

// New creates an empty R-tree index.
func New() *Index {
	return &Index{
		tree: rtreego.NewTree(2, 25, 50),
	}
}

// Insert registers the feature under the given envelope.
func (idx *Index) Insert(bound orb.Bound, f *model.Feature) error {
	rect, err := rectFromBound(bound)
	if err != nil {
		return fmt.Errorf("rtree: invalid envelope for %s: %w", f, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tree.Insert(&item{rect: rect, feature: f})
	return nil
}

// Remove unregisters the exact (bound, feature) pair. The comparator matches
// on feature pointer identity, so a stale generation's removal cannot take
// out a live replacement registered under the same ID.
func (idx *Index) Remove(bound orb.Bound, f *model.Feature) bool {
	rect, err := rectFromBound(bound)
	if err != nil {
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	return idx.tree.DeleteWithComparator(&item{rect: rect, feature: f}, sameFeature)
}

// Search returns every feature whose envelope intersects bound.
func (idx *Index) Search(bound orb.Bound) []*model.Feature {
	rect, err := rectFromBound(bound)
	if err != nil {
		return nil
	}

	idx.mu.RLock()
	hits := idx.tree.SearchIntersect(rect)
	idx.mu.RUnlock()

	features := make([]*model.Feature, 0, len(hits))
	for _, hit := range hits {
		features = append(features, hit.(*item).feature)
	}
	return features
}

// Len reports the number of registered entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.tree.Size()
}

func sameFeature(a, b rtreego.Spatial) bool {
	ia, ok := a.(*item)
	if !ok {
		return false
	}
	ib, ok := b.(*item)
	if !ok {
		return false
	}
	return ia.feature == ib.feature
}

func rectFromBound(b orb.Bound) (rtreego.Rect, error) {
	dx := b.Max.X() - b.Min.X()
	if dx < minExtent {
		dx = minExtent
	}
	dy := b.Max.Y() - b.Min.Y()
	if dy < minExtent {
		dy = minExtent
	}
	return rtreego.NewRect(rtreego.Point{b.Min.X(), b.Min.Y()}, []float64{dx, dy})
}
