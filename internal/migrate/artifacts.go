package migrate

import (
	"slices"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/planner"
)

// Phase names one stage of a run.
type Phase string

const (
	PhaseSchemas Phase = "schemas"
	PhaseIndexes Phase = "indexes"
	PhaseRules   Phase = "rules"
	PhaseSeeds   Phase = "seeds"
)

// Phases lists phases in execution order.
var Phases = []Phase{PhaseSchemas, PhaseIndexes, PhaseRules, PhaseSeeds}

// artifact is one document a run wants to exist.
type artifact struct {
	Phase      Phase
	Collection string
	Key        string
	Payload    ir.IRObject
	Hash       string
}

const (
	indexesDescription = "Composite indexes required by declared query patterns"
	indexesNote        = "Create these indexes in the database console or deploy them with firestore.indexes.json"
	rulesDescription   = "Access rule template generated from the catalog"
	rulesNote          = "Deploy these rules to the database console; provisioning does not activate them"
)

// buildArtifacts lays out every artifact of a compiled plan, grouped by
// phase in execution order.
func buildArtifacts(cp *compiledPlan) (map[Phase][]artifact, error) {
	out := make(map[Phase][]artifact, len(Phases))
	add := func(phase Phase, collection, key string, payload ir.IRObject) error {
		hash, err := ir.ContentHash(payload)
		if err != nil {
			return err
		}
		out[phase] = append(out[phase], artifact{
			Phase: phase, Collection: collection, Key: key, Payload: payload, Hash: hash,
		})
		return nil
	}

	for _, name := range cp.order {
		schema, err := cp.Registry.Get(name)
		if err != nil {
			return nil, err
		}
		if err := add(PhaseSchemas, name, ir.SchemaKey, SchemaDocument(schema, cp.Indexes[name])); err != nil {
			return nil, err
		}
	}

	if err := add(PhaseIndexes, ir.SystemCollection, ir.RequiredIndexesKey, IndexesDocument(cp.Indexes)); err != nil {
		return nil, err
	}
	if err := add(PhaseRules, ir.SystemCollection, ir.RulesTemplateKey, RulesDocument(cp.rulesText)); err != nil {
		return nil, err
	}

	for _, s := range orderSeeds(cp.Seeds, cp.order) {
		if err := add(PhaseSeeds, s.Collection, s.Key, s.Payload.Clone()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// orderSeeds sorts seeds by their collection's position in order, keeping
// declaration order within a collection.
func orderSeeds(seeds []ir.SeedRecord, order []string) []ir.SeedRecord {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	out := slices.Clone(seeds)
	slices.SortStableFunc(out, func(a, b ir.SeedRecord) int {
		return rank[a.Collection] - rank[b.Collection]
	})
	return out
}

// SchemaDocument is the payload stored at <collection>/_schema.
func SchemaDocument(schema ir.CollectionSchema, indexes []ir.IndexSpec) ir.IRObject {
	fields := make(ir.IRArray, len(schema.Fields))
	for i, f := range schema.Fields {
		field := ir.Obj(
			ir.O("name", ir.IRString(f.Name)),
			ir.O("type", ir.IRString(f.TypeHint)),
		)
		if f.Optional {
			field["optional"] = ir.IRBool(true)
		}
		if f.References != "" {
			field["references"] = ir.IRString(f.References)
		}
		fields[i] = field
	}

	doc := ir.Obj(
		ir.O("id", ir.IRString(ir.SchemaDocID)),
		ir.O("schema_version", ir.IRString(ir.SchemaDocVersion)),
		ir.O("collection", ir.IRString(schema.Name)),
		ir.O("description", ir.IRString(schema.Description)),
		ir.O("fields", fields),
	)
	if len(indexes) > 0 {
		needed := make(ir.IRArray, len(indexes))
		for i, spec := range indexes {
			needed[i] = ir.IRString(spec.Key())
		}
		doc["indexes_needed"] = needed
	}
	return doc
}

// IndexesDocument is the payload stored at _system/required_indexes.
// Collections without indexes are omitted.
func IndexesDocument(plan planner.IndexPlan) ir.IRObject {
	byCollection := ir.IRObject{}
	for _, name := range plan.Collections() {
		specs := plan[name]
		if len(specs) == 0 {
			continue
		}
		list := make(ir.IRArray, len(specs))
		for i, spec := range specs {
			fields := make(ir.IRArray, len(spec.Fields))
			for j, f := range spec.Fields {
				fields[j] = ir.Obj(
					ir.O("field", ir.IRString(f.Field)),
					ir.O("direction", ir.IRString(string(f.Direction.Normalize()))),
				)
			}
			list[i] = fields
		}
		byCollection[name] = list
	}
	return ir.Obj(
		ir.O("description", ir.IRString(indexesDescription)),
		ir.O("note", ir.IRString(indexesNote)),
		ir.O("indexes", byCollection),
	)
}

// RulesDocument is the payload stored at _system/security_rules_template.
func RulesDocument(rulesText string) ir.IRObject {
	return ir.Obj(
		ir.O("description", ir.IRString(rulesDescription)),
		ir.O("note", ir.IRString(rulesNote)),
		ir.O("rules", ir.IRString(rulesText)),
		ir.O("rules_sha256", ir.IRString(ir.RulesHash(rulesText))),
	)
}
