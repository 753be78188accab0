package lootcase

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds validated cases indexed by ID. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cases: make(map[string]*Case)}
}

// NewRegistryFromDir loads every case in dir into a new Registry.
func NewRegistryFromDir(dir string) (*Registry, error) {
	cases, err := LoadCases(dir)
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, c := range cases {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c to the registry.
//
// Precondition: c must not be nil.
// Postcondition: Case(c.ID) returns c; returns an error if c fails validation
// or its ID is already registered.
func (r *Registry) Register(c *Case) error {
	if c.Table() == nil {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cases[c.ID]; exists {
		return fmt.Errorf("lootcase: Registry.Register: case ID %q already registered", c.ID)
	}
	r.cases[c.ID] = c
	return nil
}

// Case returns the case with the given id.
//
// Postcondition: Returns (case, true) if found, or (nil, false) otherwise.
func (r *Registry) Case(id string) (*Case, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	return c, ok
}

// All returns every registered case sorted by ID.
func (r *Registry) All() []*Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Case, 0, len(r.cases))
	for _, c := range r.cases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered cases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cases)
}
