package invariant

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the typed catalog of invariants, keyed by stable id.
type Registry struct {
	mu         sync.RWMutex
	invariants map[string]*Invariant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{invariants: make(map[string]*Invariant)}
}

// MustRegister adds inv to the registry, panicking on a duplicate id — used
// at process startup where a duplicate catalog entry is a programmer error.
func (r *Registry) MustRegister(inv *Invariant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.invariants[inv.ID]; exists {
		panic(fmt.Sprintf("invariant %s already registered", inv.ID))
	}
	r.invariants[inv.ID] = inv
}

// Get returns the invariant registered under id, if any.
func (r *Registry) Get(id string) (*Invariant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invariants[id]
	return inv, ok
}

// All returns every registered invariant, sorted by id, for audit iteration.
func (r *Registry) All() []*Invariant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Invariant, 0, len(r.invariants))
	for _, inv := range r.invariants {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TopoSort orders ids by declared dependency (dependencies run before
// dependents), breaking ties by invariant id so the resulting ledger is
// reproducible across runs. It returns a *CycleError if the subgraph
// induced by ids contains a cycle.
func (r *Registry) TopoSort(ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	included := make(map[string]bool, len(ids))
	for _, id := range ids {
		included[id] = true
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(ids))
	var order []string

	// Sort the starting set for deterministic visitation order.
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return &CycleError{InvariantID: id}
		}
		color[id] = gray

		inv, ok := r.invariants[id]
		if ok {
			deps := append([]string(nil), inv.DependsOn...)
			sort.Strings(deps)
			for _, dep := range deps {
				if !included[dep] {
					continue
				}
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range sorted {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
