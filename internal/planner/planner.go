// Package planner turns declared query-access patterns into the minimal
// set of composite indexes each collection needs.
package planner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/registry"
)

// IndexPlan maps a collection name to its deduplicated index specs,
// sorted by IndexSpec.Key.
type IndexPlan map[string][]ir.IndexSpec

// Collections returns the plan's collection names sorted.
func (p IndexPlan) Collections() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Count returns the total number of index specs in the plan.
func (p IndexPlan) Count() int {
	n := 0
	for _, specs := range p {
		n += len(specs)
	}
	return n
}

// Plan builds the index plan.
//
// Every registered collection gets an entry, empty when no pattern names
// it. Patterns for collections the registry does not know are planned
// anyway; referential integrity is checked once, by the migration
// planning phase, so that every violation is reported together.
//
// Field names are not checked against the schema.
func Plan(reg *registry.Registry, patterns []ir.QueryPattern) (IndexPlan, error) {
	plan := make(IndexPlan, reg.Len())
	for _, name := range reg.Names() {
		plan[name] = []ir.IndexSpec{}
	}

	seen := make(map[string]bool)
	for i, p := range patterns {
		spec, err := specFor(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %d (%s): %w", i, p.Collection, err)
		}
		id := spec.Collection + "\x00" + spec.Key()
		if seen[id] {
			continue
		}
		seen[id] = true
		plan[spec.Collection] = append(plan[spec.Collection], spec)
	}

	for name := range plan {
		slices.SortFunc(plan[name], func(a, b ir.IndexSpec) int {
			return strings.Compare(a.Key(), b.Key())
		})
	}
	return plan, nil
}

func specFor(p ir.QueryPattern) (ir.IndexSpec, error) {
	if p.Collection == "" {
		return ir.IndexSpec{}, fmt.Errorf("%w: missing collection", ir.ErrInvalidPattern)
	}
	if len(p.Fields) == 0 {
		return ir.IndexSpec{}, fmt.Errorf("%w: no fields", ir.ErrInvalidPattern)
	}
	fields := make([]ir.IndexField, len(p.Fields))
	for i, f := range p.Fields {
		if f.Field == "" {
			return ir.IndexSpec{}, fmt.Errorf("%w: field %d has no name", ir.ErrInvalidPattern, i)
		}
		if !f.Direction.Valid() {
			return ir.IndexSpec{}, fmt.Errorf("%w: field %q has direction %q", ir.ErrInvalidPattern, f.Field, f.Direction)
		}
		fields[i] = ir.IndexField{Field: f.Field, Direction: f.Direction.Normalize()}
	}
	return ir.IndexSpec{Collection: p.Collection, Fields: fields}, nil
}
