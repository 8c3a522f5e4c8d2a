package rtree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostreamdb/geostream/model"
)

func pointFeature(id string, x, y float64) *model.Feature {
	return &model.Feature{ID: id, Geometry: orb.Point{x, y}}
}

func TestIndex_InsertSearch(t *testing.T) {
	idx := New()

	a := pointFeature("a", 0, 0)
	b := pointFeature("b", 10, 10)
	require.NoError(t, idx.Insert(a.Bound(), a))
	require.NoError(t, idx.Insert(b.Bound(), b))
	assert.Equal(t, 2, idx.Len())

	// Envelope covering only (0,0).
	got := idx.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	// Envelope covering both.
	got = idx.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{11, 11}})
	assert.Len(t, got, 2)
}

func TestIndex_RemoveExactInstance(t *testing.T) {
	idx := New()

	old := pointFeature("a", 0, 0)
	replacement := pointFeature("a", 0, 0) // same ID, same spot, new generation
	require.NoError(t, idx.Insert(old.Bound(), old))
	require.NoError(t, idx.Insert(replacement.Bound(), replacement))

	// Removing the old generation must not take out the replacement.
	assert.True(t, idx.Remove(old.Bound(), old))

	got := idx.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}})
	require.Len(t, got, 1)
	assert.Same(t, replacement, got[0])
}

func TestIndex_RemoveAbsentIsNoop(t *testing.T) {
	idx := New()

	f := pointFeature("a", 0, 0)
	assert.False(t, idx.Remove(f.Bound(), f))
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_NonPointGeometry(t *testing.T) {
	idx := New()

	line := &model.Feature{ID: "road", Geometry: orb.LineString{{0, 0}, {5, 5}}}
	require.NoError(t, idx.Insert(line.Bound(), line))

	got := idx.Search(orb.Bound{Min: orb.Point{4, 4}, Max: orb.Point{6, 6}})
	require.Len(t, got, 1)
	assert.Equal(t, "road", got[0].ID)
}

func TestIndex_ConcurrentReadersAndWriter(t *testing.T) {
	idx := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f := pointFeature(fmt.Sprintf("f-%d", i), float64(i%90), float64(i%45))
			_ = idx.Insert(f.Bound(), f)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				idx.Search(model.WorldBound)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, idx.Len())
}
