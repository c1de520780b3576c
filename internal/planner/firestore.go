package planner

import "github.com/roach88/provision/internal/ir"

// FirestoreIndexFile is the firestore.indexes.json document shape.
type FirestoreIndexFile struct {
	Indexes        []FirestoreIndex `json:"indexes"`
	FieldOverrides []any            `json:"fieldOverrides"`
}

// FirestoreIndex is one composite index entry.
type FirestoreIndex struct {
	CollectionGroup string           `json:"collectionGroup"`
	QueryScope      string           `json:"queryScope"`
	Fields          []FirestoreField `json:"fields"`
}

// FirestoreField is one field of a composite index.
type FirestoreField struct {
	FieldPath string `json:"fieldPath"`
	Order     string `json:"order"`
}

// FirestoreIndexes renders the plan for the Firestore CLI. Single-field
// specs are skipped because Firestore maintains those automatically.
// Output order follows Collections() then the plan's key order.
func FirestoreIndexes(plan IndexPlan) FirestoreIndexFile {
	out := FirestoreIndexFile{Indexes: []FirestoreIndex{}, FieldOverrides: []any{}}
	for _, name := range plan.Collections() {
		for _, spec := range plan[name] {
			if len(spec.Fields) < 2 {
				continue
			}
			idx := FirestoreIndex{CollectionGroup: name, QueryScope: "COLLECTION"}
			for _, f := range spec.Fields {
				order := "ASCENDING"
				if f.Direction.Normalize() == ir.Desc {
					order = "DESCENDING"
				}
				idx.Fields = append(idx.Fields, FirestoreField{FieldPath: f.Field, Order: order})
			}
			out.Indexes = append(out.Indexes, idx)
		}
	}
	return out
}
