package job

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds job definitions in registration order.
type Registry struct {
	mu   sync.RWMutex
	defs []Definition
	byID map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]int{}}
}

// Register adds d. Ids are unique across the registry.
func (r *Registry) Register(d Definition) error {
	d.ID = strings.TrimSpace(d.ID)
	if err := d.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, d.ID)
	}
	r.byID[d.ID] = len(r.defs)
	r.defs = append(r.defs, d)
	return nil
}

// All returns a copy of the definitions in registration order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Definition(nil), r.defs...)
}

func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
