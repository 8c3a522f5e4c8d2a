package ingest

import (
	"sync"

	"github.com/geostreamdb/geostream/filter"
	"github.com/geostreamdb/geostream/model"
)

// Listener receives every newly ingested feature that passes its predicate.
type Listener interface {
	OnFeature(f *model.Feature)
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(f *model.Feature)

// OnFeature implements Listener.
func (fn ListenerFunc) OnFeature(f *model.Feature) { fn(f) }

type registration struct {
	listener Listener
	pred     filter.Predicate
}

// Registry is a concurrently-readable, occasionally-mutated collection of
// listeners. Iteration works on a snapshot, so registering a listener never
// blocks an in-flight notification round.
type Registry struct {
	mu   sync.RWMutex
	regs []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a listener. A non-nil predicate gates delivery: the
// listener is only invoked for features the predicate matches.
func (r *Registry) Register(l Listener, pred filter.Predicate) {
	if l == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.regs = append(r.regs, registration{listener: l, pred: pred})
}

// Len reports the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.regs)
}

// snapshot returns a copy safe to iterate without the lock.
func (r *Registry) snapshot() []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := make([]registration, len(r.regs))
	copy(regs, r.regs)
	return regs
}
