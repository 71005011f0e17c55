package model

import (
	"fmt"
	"sync"
)

// Registry holds the models known to the process. It is populated at
// start-up and read-only once sealed.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Definition
	order  []string
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Definition)}
}

// Register validates and adds a model keyed by its table name.
func (r *Registry) Register(def Definition) error {
	if err := Validate(def); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("registry is sealed, cannot register %s", def.TableName())
	}
	if _, exists := r.models[def.TableName()]; exists {
		return fmt.Errorf("model %s already registered", def.TableName())
	}
	r.models[def.TableName()] = def
	r.order = append(r.order, def.TableName())
	return nil
}

// MustRegister is Register for static declarations.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal rejects further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup finds a model by table name.
func (r *Registry) Lookup(table string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.models[table]
	return def, ok
}

// Models returns registered models in registration order.
func (r *Registry) Models() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, table := range r.order {
		out = append(out, r.models[table])
	}
	return out
}
