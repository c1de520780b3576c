package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Reserved document locations. Business collections may not start with
// ReservedPrefix, and no seed may use SchemaKey.
const (
	ReservedPrefix   = "_"
	SchemaKey        = "_schema"
	SystemCollection = "_system"

	RequiredIndexesKey = "required_indexes"
	RulesTemplateKey   = "security_rules_template"
	LastRunReportKey   = "last_run_report"

	// SchemaDocID marks a document as a schema description rather than data.
	SchemaDocID = "SCHEMA_DOC"
)

// CollectionSchema describes one named document collection.
type CollectionSchema struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Fields      []FieldSpec `json:"fields" yaml:"fields"`
}

// FieldSpec describes one field of a collection. TypeHint is documentation
// only and is never validated against stored data.
type FieldSpec struct {
	Name     string `json:"name" yaml:"name"`
	TypeHint string `json:"type" yaml:"type"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`

	// References names the collection this field points at. Used for
	// dependency ordering and referential checks only.
	References string `json:"references,omitempty" yaml:"references,omitempty"`
}

// Clone deep-copies the schema.
func (s CollectionSchema) Clone() CollectionSchema {
	s.Fields = append([]FieldSpec(nil), s.Fields...)
	return s
}

// References returns the distinct collections this schema points at, in
// field order.
func (s CollectionSchema) References() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, f := range s.Fields {
		if f.References == "" || seen[f.References] {
			continue
		}
		seen[f.References] = true
		refs = append(refs, f.References)
	}
	return refs
}

// IsReserved reports whether a collection name is reserved for system use.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}

// Direction is an index sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Normalize maps the empty direction to Asc.
func (d Direction) Normalize() Direction {
	if d == "" {
		return Asc
	}
	return d
}

// Valid reports whether d is asc, desc, or empty.
func (d Direction) Valid() bool {
	switch d.Normalize() {
	case Asc, Desc:
		return true
	}
	return false
}

// IndexField is one ordered component of a composite index.
type IndexField struct {
	Field     string    `json:"field" yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// String renders "field:dir". Field names containing a separator or a
// quote are quoted, so distinct field lists never render the same key.
func (f IndexField) String() string {
	name := f.Field
	if strings.ContainsAny(name, `:,"\`) {
		name = strconv.Quote(name)
	}
	return name + ":" + string(f.Direction.Normalize())
}

// IndexSpec is a composite index over one collection.
type IndexSpec struct {
	Collection string       `json:"collection" yaml:"collection"`
	Fields     []IndexField `json:"fields" yaml:"fields"`
}

// Key is the set identity of an index: "field:dir,field:dir".
func (s IndexSpec) Key() string {
	return fieldsKey(s.Fields)
}

// QueryPattern declares that clients query a collection filtering or
// ordering on Fields, in that order.
type QueryPattern struct {
	Collection string       `json:"collection" yaml:"collection"`
	Fields     []IndexField `json:"fields" yaml:"fields"`
}

// Key matches IndexSpec.Key for the index this pattern requires.
func (p QueryPattern) Key() string {
	return fieldsKey(p.Fields)
}

func fieldsKey(fields []IndexField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// ParseIndexField parses "field" or "field asc|desc".
func ParseIndexField(s string) (IndexField, error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return IndexField{Field: parts[0], Direction: Asc}, nil
	case 2:
		d := Direction(strings.ToLower(parts[1]))
		if !d.Valid() {
			return IndexField{}, fmt.Errorf("%w: direction %q in %q", ErrInvalidPattern, parts[1], s)
		}
		return IndexField{Field: parts[0], Direction: d}, nil
	default:
		return IndexField{}, fmt.Errorf("%w: cannot parse index field %q", ErrInvalidPattern, s)
	}
}

// Operation is a document operation guarded by access rules.
type Operation string

const (
	OpCreate Operation = "create"
	OpDelete Operation = "delete"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
)

// AllOperations lists operations in rendering order.
var AllOperations = []Operation{OpCreate, OpDelete, OpRead, OpUpdate}

// WriteOperations is what the "write" shorthand expands to.
var WriteOperations = []Operation{OpCreate, OpDelete, OpUpdate}

// Valid reports whether op is one of the four operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpDelete, OpRead, OpUpdate:
		return true
	}
	return false
}

// AccessRule grants Operation on Collection when Predicate holds.
type AccessRule struct {
	Collection string
	Operation  Operation
	Predicate  Predicate
}

// SeedRecord is a reference document that must exist after provisioning.
// Key is stable across runs so re-application overwrites instead of
// duplicating.
type SeedRecord struct {
	Collection string   `json:"collection"`
	Key        string   `json:"key"`
	Payload    IRObject `json:"payload"`
}

// Clone deep-copies the record.
func (r SeedRecord) Clone() SeedRecord {
	r.Payload = r.Payload.Clone()
	return r
}
