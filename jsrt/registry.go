package jsrt

import (
	"slices"
	"sync"

	"github.com/dop251/goja"
)

// Registry maps element ids to the objects created for them. It is created
// once per Runtime, shared by reference with whoever needs lookups, and
// cleared on teardown.
type Registry struct {
	items map[string]*goja.Object
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*goja.Object)}
}

// Register binds id to obj, replacing any previous binding.
func (r *Registry) Register(id string, obj *goja.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = obj
}

// Lookup returns the object registered under id.
func (r *Registry) Lookup(id string) (*goja.Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.items[id]
	return obj, ok
}

// Remove drops id and reports whether it was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	delete(r.items, id)
	return ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Clear removes every binding.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
}
