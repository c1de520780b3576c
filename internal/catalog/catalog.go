// Package catalog loads declarative provisioning catalogs.
//
// A catalog names the collections of one project, the query patterns
// clients run against them, the access rules guarding them, and the
// reference documents seeded into them. Catalogs are written in YAML or
// CUE with the same shape:
//
//	collections:
//	  - name: feed_items
//	    description: Social feed items
//	    fields:
//	      - {name: author_id, type: string, references: actors}
//	patterns:
//	  feed_items:
//	    - [author_id, "created_at desc"]
//	rules:
//	  - collection: feed_items
//	    operations: [read]
//	    allow: {all: [authenticated, {owner: author_id}]}
//	seeds:
//	  - {collection: milestones, key: social_smiling_0_6, data: {title: Social smiling}}
//
// Loading is purely structural. Referential checks (unknown collections,
// uncovered patterns, duplicate seeds) belong to planning, which reports
// all of them at once.
package catalog

import (
	"fmt"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/migrate"
	"github.com/roach88/provision/internal/planner"
	"github.com/roach88/provision/internal/policy"
	"github.com/roach88/provision/internal/registry"
)

// Catalog is a decoded catalog file.
type Catalog struct {
	// Source is the file the catalog was read from, or "builtin".
	Source string

	Collections []ir.CollectionSchema
	Patterns    []ir.QueryPattern
	Rules       []ir.AccessRule
	Seeds       []ir.SeedRecord

	// ActorCollection overrides policy.DefaultActorCollection when set.
	ActorCollection string
}

// Registry builds a schema registry from the catalog's collections.
func (c *Catalog) Registry() (*registry.Registry, error) {
	return registry.FromSchemas(c.Collections...)
}

// Compiler returns the policy compiler configured for this catalog.
func (c *Catalog) Compiler() *policy.Compiler {
	return &policy.Compiler{ActorCollection: c.ActorCollection}
}

// Plan runs the registry and the index planner over the catalog and
// assembles a migration plan. Seeds are checked with every other planning
// violation when the plan is compiled.
func (c *Catalog) Plan() (migrate.Plan, error) {
	reg, err := c.Registry()
	if err != nil {
		return migrate.Plan{}, fmt.Errorf("%s: %w", c.Source, err)
	}
	indexes, err := planner.Plan(reg, c.Patterns)
	if err != nil {
		return migrate.Plan{}, fmt.Errorf("%s: %w", c.Source, err)
	}
	seeds := make([]ir.SeedRecord, len(c.Seeds))
	for i, r := range c.Seeds {
		seeds[i] = r.Clone()
	}
	return migrate.Plan{
		Registry: reg,
		Indexes:  indexes,
		Rules:    c.Rules,
		Seeds:    seeds,
	}, nil
}
