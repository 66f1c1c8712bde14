package engine

import (
	"fmt"
	"sync"
)

// ReleaseFunc is called when the last handle for a resource ID is
// released, typically from a branch unmount notification.
type ReleaseFunc func(id string)

// HandleRegistry reference-counts externally fetched resource IDs (e.g.
// model checkpoints a field refers to). Multiple fields may register the
// same ID; the release callback fires only when the final handle is
// disposed. The registry is safe for concurrent use since owners of
// different instances may share one.
type HandleRegistry struct {
	mu        sync.Mutex
	counts    map[string]int
	onRelease ReleaseFunc
}

// NewHandleRegistry creates a registry. onRelease may be nil.
func NewHandleRegistry(onRelease ReleaseFunc) *HandleRegistry {
	return &HandleRegistry{
		counts:    make(map[string]int),
		onRelease: onRelease,
	}
}

// Handle is one registration of a resource ID. Release it exactly once.
type Handle struct {
	registry *HandleRegistry
	id       string
	released bool
}

// ID returns the registered resource ID.
func (h *Handle) ID() string {
	return h.id
}

// Register increments the reference count for id and returns a handle.
func (r *HandleRegistry) Register(id string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id]++
	return &Handle{registry: r, id: id}
}

// Count returns the current reference count for id.
func (r *HandleRegistry) Count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// Release decrements the reference count. The last release for an ID
// triggers the registry's release callback. Releasing twice is a
// programmer error.
func (h *Handle) Release() error {
	if h.released {
		return fmt.Errorf("handle for %q already released", h.id)
	}
	h.released = true

	r := h.registry
	r.mu.Lock()
	r.counts[h.id]--
	final := r.counts[h.id] <= 0
	if final {
		delete(r.counts, h.id)
	}
	cb := r.onRelease
	r.mu.Unlock()

	if final && cb != nil {
		cb(h.id)
	}
	return nil
}
