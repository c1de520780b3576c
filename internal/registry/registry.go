// Package registry is the in-memory catalog of collection schemas.
//
// A Registry is pure data: it performs no I/O and is built once per run,
// either programmatically or from a catalog file. Registration order is
// preserved for human-facing output only; nothing downstream depends on it.
package registry

import (
	"fmt"
	"slices"

	"github.com/roach88/provision/internal/ir"
)

// Registry holds uniquely named collection schemas.
// It is not safe for concurrent mutation; build it before planning.
type Registry struct {
	order   []string
	schemas map[string]ir.CollectionSchema
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{schemas: make(map[string]ir.CollectionSchema)}
}

// FromSchemas registers each schema in order and stops at the first error.
func FromSchemas(schemas ...ir.CollectionSchema) (*Registry, error) {
	r := New()
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema. On any error the Registry is left unchanged.
func (r *Registry) Register(schema ir.CollectionSchema) error {
	if err := validateSchema(schema); err != nil {
		return err
	}
	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("register %q: %w", schema.Name, ir.ErrDuplicateCollection)
	}
	r.schemas[schema.Name] = schema.Clone()
	r.order = append(r.order, schema.Name)
	return nil
}

func validateSchema(schema ir.CollectionSchema) error {
	if schema.Name == "" {
		return fmt.Errorf("register: empty collection name: %w", ir.ErrInvalidSchema)
	}
	if ir.IsReserved(schema.Name) {
		return fmt.Errorf("register %q: names starting with %q are reserved: %w",
			schema.Name, ir.ReservedPrefix, ir.ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(schema.Fields))
	for i, f := range schema.Fields {
		if f.Name == "" {
			return fmt.Errorf("register %q: field %d has no name: %w", schema.Name, i, ir.ErrInvalidSchema)
		}
		if seen[f.Name] {
			return fmt.Errorf("register %q: duplicate field %q: %w", schema.Name, f.Name, ir.ErrInvalidSchema)
		}
		seen[f.Name] = true
	}
	return nil
}

// Get returns a copy of the named schema.
func (r *Registry) Get(name string) (ir.CollectionSchema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return ir.CollectionSchema{}, fmt.Errorf("get %q: %w", name, ir.ErrUnknownCollection)
	}
	return s.Clone(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// All returns copies of every schema in registration order.
func (r *Registry) All() []ir.CollectionSchema {
	out := make([]ir.CollectionSchema, len(r.order))
	for i, name := range r.order {
		out[i] = r.schemas[name].Clone()
	}
	return out
}

// Names returns collection names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.order)
}
