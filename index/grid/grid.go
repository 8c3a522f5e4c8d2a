// Package grid implements the geostream spatial index as a fixed-cell grid.
//
// Each cell holds a Roaring bitmap of slot IDs; a query unions the bitmaps
// of the covered cells and then filters candidates by exact envelope
// intersection. The grid trades a little insert cost for cheap bulk
// candidate retrieval on dense feeds.
package grid

import (
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream/model"
)

// DefaultCellSize is the cell edge length in degrees.
const DefaultCellSize = 1.0

type cellKey struct {
	x, y int32
}

type slot struct {
	feature *model.Feature
	bound   orb.Bound
}

// Index is a thread-safe grid spatial index.
type Index struct {
	mu       sync.RWMutex
	cellSize float64
	cells    map[cellKey]*roaring.Bitmap
	slots    []slot
	free     []uint32
	byRef    map[*model.Feature]uint32
}

// New creates an empty grid index. cellSize <= 0 picks DefaultCellSize.
func New(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey]*roaring.Bitmap),
		byRef:    make(map[*model.Feature]uint32),
	}
}

// Insert registers the feature under the given envelope. Re-inserting the
// same feature instance re-registers it under the new envelope.
func (idx *Index) Insert(bound orb.Bound, f *model.Feature) error {
	if math.IsNaN(bound.Min.X()) || math.IsNaN(bound.Min.Y()) ||
		math.IsNaN(bound.Max.X()) || math.IsNaN(bound.Max.Y()) {
		return fmt.Errorf("grid: invalid envelope for %s", f)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.byRef[f]; ok {
		idx.unregister(id)
	}

	var id uint32
	if n := len(idx.free); n > 0 {
		id = idx.free[n-1]
		idx.free = idx.free[:n-1]
		idx.slots[id] = slot{feature: f, bound: bound}
	} else {
		id = uint32(len(idx.slots))
		idx.slots = append(idx.slots, slot{feature: f, bound: bound})
	}
	idx.byRef[f] = id

	idx.eachCell(bound, func(key cellKey) {
		bm, ok := idx.cells[key]
		if !ok {
			bm = roaring.New()
			idx.cells[key] = bm
		}
		bm.Add(id)
	})
	return nil
}

// Remove unregisters the exact feature instance. Removal of an absent entry
// reports false.
func (idx *Index) Remove(_ orb.Bound, f *model.Feature) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.byRef[f]
	if !ok {
		return false
	}
	idx.unregister(id)
	return true
}

// Search returns every feature whose registered envelope intersects bound.
func (idx *Index) Search(bound orb.Bound) []*model.Feature {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var bitmaps []*roaring.Bitmap
	idx.eachCell(bound, func(key cellKey) {
		if bm, ok := idx.cells[key]; ok {
			bitmaps = append(bitmaps, bm)
		}
	})
	if len(bitmaps) == 0 {
		return nil
	}

	candidates := roaring.FastOr(bitmaps...)
	features := make([]*model.Feature, 0, candidates.GetCardinality())

	it := candidates.Iterator()
	for it.HasNext() {
		s := idx.slots[it.Next()]
		// Cell membership over-approximates; confirm exact intersection.
		if s.bound.Intersects(bound) {
			features = append(features, s.feature)
		}
	}
	return features
}

// Len reports the number of registered entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.byRef)
}

// unregister removes the slot from all covering cells. Caller holds the
// write lock.
func (idx *Index) unregister(id uint32) {
	s := idx.slots[id]
	idx.eachCell(s.bound, func(key cellKey) {
		if bm, ok := idx.cells[key]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(idx.cells, key)
			}
		}
	})
	delete(idx.byRef, s.feature)
	idx.slots[id] = slot{}
	idx.free = append(idx.free, id)
}

func (idx *Index) eachCell(bound orb.Bound, fn func(cellKey)) {
	x0 := int32(math.Floor(bound.Min.X() / idx.cellSize))
	x1 := int32(math.Floor(bound.Max.X() / idx.cellSize))
	y0 := int32(math.Floor(bound.Min.Y() / idx.cellSize))
	y1 := int32(math.Floor(bound.Max.Y() / idx.cellSize))

	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			fn(cellKey{x: x, y: y})
		}
	}
}
