package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a concurrency-safe collection of table definitions.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*Table),
	}
}

// Register finalizes and stores a table definition. Registering the
// same name twice is an error.
func (r *Registry) Register(t *Table) error {
	if err := t.Finalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[t.Name]; exists {
		return fmt.Errorf("schema: table %q already registered", t.Name)
	}
	r.tables[t.Name] = t
	return nil
}

// Get returns the named table, or nil if none is registered.
func (r *Registry) Get(name string) *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[name]
}

// Tables returns all registered tables ordered by name.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TableCount returns the number of registered tables.
func (r *Registry) TableCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}
