package permission

import (
	"errors"
	"sync"
)

// Registry maps permission names to bit positions within a [Set]. The root
// bit is always reserved, leaving room for 127 named permissions.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[Permission]int
	bitToName map[int]Permission
	frozen    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[Permission]int),
		bitToName: make(map[int]Permission),
	}
}

// Register assigns the next available bit to the named permission.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(p Permission) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if !p.Valid() {
		return -1, errors.New("permission name must have MODULE.ACTION form")
	}

	if _, exists := r.nameToBit[p]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= rootBit {
		return -1, errors.New("permission limit exceeded (root bit reserved)")
	}

	r.nameToBit[p] = nextBit
	r.bitToName[nextBit] = p

	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(p Permission) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[p]
	return bit, ok
}

// Name returns the permission for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
