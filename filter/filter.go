// Package filter provides composable predicates over features.
//
// Predicates are the residual part of a query: the spatial index prunes by
// envelope only, so candidates are re-checked against the full predicate
// before being returned.
package filter

import (
	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream/model"
)

// Predicate reports whether a feature matches.
type Predicate interface {
	Matches(f *model.Feature) bool
}

// Func adapts a plain function to a Predicate.
type Func func(f *model.Feature) bool

// Matches implements Predicate.
func (fn Func) Matches(f *model.Feature) bool { return fn(f) }

// Intersects matches features whose geometry envelope intersects bound.
func Intersects(bound orb.Bound) Predicate {
	return Func(func(f *model.Feature) bool {
		return f.Bound().Intersects(bound)
	})
}

// TagEq matches features whose tag under key equals want. Numeric values
// compare across int/float representations.
func TagEq(key string, want any) Predicate {
	return Func(func(f *model.Feature) bool {
		got, ok := f.Tags[key]
		return ok && valueEqual(got, want)
	})
}

// TagIn matches features whose tag under key equals any of the values.
func TagIn(key string, values ...any) Predicate {
	return Func(func(f *model.Feature) bool {
		got, ok := f.Tags[key]
		if !ok {
			return false
		}
		for _, want := range values {
			if valueEqual(got, want) {
				return true
			}
		}
		return false
	})
}

// And matches when every predicate matches. And() matches everything.
func And(preds ...Predicate) Predicate {
	return Func(func(f *model.Feature) bool {
		for _, p := range preds {
			if !p.Matches(f) {
				return false
			}
		}
		return true
	})
}

// Or matches when at least one predicate matches. Or() matches nothing.
func Or(preds ...Predicate) Predicate {
	return Func(func(f *model.Feature) bool {
		for _, p := range preds {
			if p.Matches(f) {
				return true
			}
		}
		return false
	})
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return Func(func(f *model.Feature) bool {
		return !p.Matches(f)
	})
}

// valueEqual compares tag values. Numbers compare by value regardless of
// their concrete Go type, since tag payloads decoded from JSON arrive as
// float64 while hand-built features tend to carry ints.
func valueEqual(a, b any) bool {
	af, aNum := asFloat64(a)
	bf, bNum := asFloat64(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
