package filter

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/geostreamdb/geostream/model"
)

func tagged(id string, tags map[string]any) *model.Feature {
	return &model.Feature{ID: id, Geometry: orb.Point{0, 0}, Tags: tags}
}

func TestTagEq(t *testing.T) {
	f := tagged("a", map[string]any{"kind": "bus", "line": 7})

	assert.True(t, TagEq("kind", "bus").Matches(f))
	assert.False(t, TagEq("kind", "tram").Matches(f))
	assert.False(t, TagEq("missing", "bus").Matches(f))
}

func TestTagEq_NumericCrossType(t *testing.T) {
	// JSON decoding yields float64; hand-built features carry ints.
	f := tagged("a", map[string]any{"line": float64(7)})

	assert.True(t, TagEq("line", 7).Matches(f))
	assert.True(t, TagEq("line", int64(7)).Matches(f))
	assert.False(t, TagEq("line", 8).Matches(f))
}

func TestTagIn(t *testing.T) {
	f := tagged("a", map[string]any{"kind": "bus"})

	assert.True(t, TagIn("kind", "tram", "bus").Matches(f))
	assert.False(t, TagIn("kind", "tram", "metro").Matches(f))
	assert.False(t, TagIn("kind").Matches(f))
}

func TestIntersects(t *testing.T) {
	f := &model.Feature{ID: "a", Geometry: orb.Point{5, 5}}

	assert.True(t, Intersects(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}).Matches(f))
	assert.False(t, Intersects(orb.Bound{Min: orb.Point{6, 6}, Max: orb.Point{10, 10}}).Matches(f))
}

func TestCombinators(t *testing.T) {
	f := tagged("a", map[string]any{"kind": "bus", "line": 7})

	assert.True(t, And(TagEq("kind", "bus"), TagEq("line", 7)).Matches(f))
	assert.False(t, And(TagEq("kind", "bus"), TagEq("line", 8)).Matches(f))
	assert.True(t, And().Matches(f), "empty conjunction matches everything")

	assert.True(t, Or(TagEq("kind", "tram"), TagEq("line", 7)).Matches(f))
	assert.False(t, Or().Matches(f), "empty disjunction matches nothing")

	assert.False(t, Not(TagEq("kind", "bus")).Matches(f))
}
