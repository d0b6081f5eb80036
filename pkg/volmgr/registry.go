package volmgr

import (
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/pkg/volume"
)

// Registry is the concurrent volume table. Lookups and iteration proceed
// under a read lock; insert and erase take the write lock. Erase is only
// called by the reaper's finalize step.
type Registry struct {
	mu   sync.RWMutex
	vols map[uuid.UUID]*volume.Volume
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{vols: make(map[uuid.UUID]*volume.Volume)}
}

// Insert adds a volume. Returns false if the id is already present,
// including a volume still draining in the destroying state.
func (r *Registry) Insert(v *volume.Volume) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vols[v.ID()]; exists {
		return false
	}
	r.vols[v.ID()] = v
	return true
}

// Lookup returns the volume for the id, or nil.
func (r *Registry) Lookup(id uuid.UUID) *volume.Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vols[id]
}

// Erase removes the entry. Returns false if it was already gone.
func (r *Registry) Erase(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vols[id]; !exists {
		return false
	}
	delete(r.vols, id)
	return true
}

// Len returns the number of registered volumes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vols)
}

// Snapshot copies the current volume set. Callers act on the copy outside
// the lock; entries may have been erased by the time they are visited.
func (r *Registry) Snapshot() []*volume.Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*volume.Volume, 0, len(r.vols))
	for _, v := range r.vols {
		out = append(out, v)
	}
	return out
}

// IDs returns the registered volume ids.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.vols))
	for id := range r.vols {
		out = append(out, id)
	}
	return out
}
