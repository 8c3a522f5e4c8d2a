package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Feature is a georeferenced record. Features are immutable once ingested:
// a new Feature carrying the same ID replaces the old one, it never mutates
// it in place.
type Feature struct {
	// ID is the stable, user-facing identifier. Identity is defined by ID
	// alone; geometry and tags do not participate in equality.
	ID string

	// Geometry is the feature's shape in lon/lat coordinates.
	Geometry orb.Geometry

	// Tags is an arbitrary attribute payload.
	Tags map[string]any
}

// Bound returns the axis-aligned bounding envelope of the feature's
// geometry. Callers that need the envelope later (e.g. to unregister the
// feature from a spatial index) should capture the value at index time
// rather than recompute it.
func (f *Feature) Bound() orb.Bound {
	if f.Geometry == nil {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}

// String returns a short representation for logs.
func (f *Feature) String() string {
	return fmt.Sprintf("Feature(%s)", f.ID)
}

// Entry pairs a feature with its envelope as computed at insertion time.
// It is the unit stored in the expiring cache so that eviction can remove
// the exact (envelope, feature) registration from the spatial index without
// touching geometry again.
type Entry struct {
	Feature *Feature
	Bound   orb.Bound
}

// NewEntry captures a feature together with its current envelope.
func NewEntry(f *Feature) Entry {
	return Entry{Feature: f, Bound: f.Bound()}
}

// WorldBound is the whole valid lon/lat coordinate domain. Queries without
// a spatial constraint scan this envelope.
var WorldBound = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
