package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provision/internal/ir"
)

// decoder turns a generic document tree (maps, lists, scalars as produced
// by yaml.v3 or encoding/json with UseNumber) into a Catalog.
type decoder struct {
	locate func(Path) Position
	errs   Errors
}

func (d *decoder) fail(p Path, sentinel error, format string, args ...any) {
	e := &Error{Path: p, Message: fmt.Sprintf(format, args...), Err: sentinel}
	if d.locate != nil {
		e.Pos = d.locate(p)
	}
	d.errs = append(d.errs, e)
}

var topLevelKeys = []string{"actor_collection", "collections", "patterns", "rules", "seeds"}

func (d *decoder) catalog(root any, source string) (*Catalog, error) {
	c := &Catalog{Source: source}
	if root == nil {
		return c, nil
	}
	m, ok := d.mapping(root, nil)
	if !ok {
		return nil, d.errs
	}
	for _, k := range sortedKeys(m) {
		if !slices.Contains(topLevelKeys, k) {
			d.fail(Path{k}, nil, "unknown top-level key %q", k)
		}
	}

	if v, ok := m["actor_collection"]; ok {
		c.ActorCollection, _ = d.str(v, Path{"actor_collection"})
	}
	if v, ok := m["collections"]; ok {
		items, _ := d.list(v, Path{"collections"})
		for i, item := range items {
			if s, ok := d.collection(item, Path{"collections", i}); ok {
				c.Collections = append(c.Collections, s)
			}
		}
	}
	if v, ok := m["patterns"]; ok {
		c.Patterns = d.patterns(v, Path{"patterns"})
	}
	if v, ok := m["rules"]; ok {
		items, _ := d.list(v, Path{"rules"})
		for i, item := range items {
			c.Rules = append(c.Rules, d.rule(item, Path{"rules", i})...)
		}
	}
	if v, ok := m["seeds"]; ok {
		items, _ := d.list(v, Path{"seeds"})
		for i, item := range items {
			if r, ok := d.seed(item, Path{"seeds", i}); ok {
				c.Seeds = append(c.Seeds, r)
			}
		}
	}

	if len(d.errs) > 0 {
		return nil, d.errs
	}
	return c, nil
}

func (d *decoder) collection(v any, p Path) (ir.CollectionSchema, bool) {
	m, ok := d.mapping(v, p)
	if !ok {
		return ir.CollectionSchema{}, false
	}
	d.onlyKeys(m, p, "name", "description", "fields")
	var s ir.CollectionSchema
	s.Name, ok = d.str(m["name"], p.key("name"))
	if !ok {
		return s, false
	}
	if desc, present := m["description"]; present {
		s.Description, _ = d.str(desc, p.key("description"))
	}
	fields, _ := d.optionalList(m["fields"], p.key("fields"))
	for i, f := range fields {
		fp := p.key("fields").index(i)
		fm, ok := d.mapping(f, fp)
		if !ok {
			continue
		}
		d.onlyKeys(fm, fp, "name", "type", "optional", "references")
		var spec ir.FieldSpec
		if spec.Name, ok = d.str(fm["name"], fp.key("name")); !ok {
			continue
		}
		if t, present := fm["type"]; present {
			spec.TypeHint, _ = d.str(t, fp.key("type"))
		}
		if o, present := fm["optional"]; present {
			spec.Optional, _ = d.boolean(o, fp.key("optional"))
		}
		if r, present := fm["references"]; present {
			spec.References, _ = d.str(r, fp.key("references"))
		}
		s.Fields = append(s.Fields, spec)
	}
	return s, true
}

// patterns decodes {collection: [[field, "field desc"], ...]}.
func (d *decoder) patterns(v any, p Path) []ir.QueryPattern {
	m, ok := d.mapping(v, p)
	if !ok {
		return nil
	}
	var out []ir.QueryPattern
	for _, coll := range sortedKeys(m) {
		cp := p.key(coll)
		groups, _ := d.list(m[coll], cp)
		for i, g := range groups {
			gp := cp.index(i)
			items, ok := d.list(g, gp)
			if !ok {
				continue
			}
			qp := ir.QueryPattern{Collection: coll}
			for j, item := range items {
				s, ok := d.str(item, gp.index(j))
				if !ok {
					continue
				}
				f, err := ir.ParseIndexField(s)
				if err != nil {
					d.fail(gp.index(j), ir.ErrInvalidPattern, "%v", err)
					continue
				}
				qp.Fields = append(qp.Fields, f)
			}
			out = append(out, qp)
		}
	}
	return out
}

// rule decodes one rule entry, expanding "write" and multi-operation
// lists into one AccessRule per operation.
func (d *decoder) rule(v any, p Path) []ir.AccessRule {
	m, ok := d.mapping(v, p)
	if !ok {
		return nil
	}
	d.onlyKeys(m, p, "collection", "operations", "allow")
	coll, ok := d.str(m["collection"], p.key("collection"))
	if !ok {
		return nil
	}
	ops := d.operations(m["operations"], p.key("operations"))
	raw, present := m["allow"]
	if !present {
		d.fail(p.key("allow"), nil, "missing allow predicate")
		return nil
	}
	pred, ok := d.predicate(raw, p.key("allow"))
	if !ok {
		return nil
	}
	rules := make([]ir.AccessRule, len(ops))
	for i, op := range ops {
		rules[i] = ir.AccessRule{Collection: coll, Operation: op, Predicate: pred}
	}
	return rules
}

func (d *decoder) operations(v any, p Path) []ir.Operation {
	var names []string
	switch x := v.(type) {
	case nil:
		d.fail(p, nil, "missing operations")
		return nil
	case string:
		names = []string{x}
	default:
		items, ok := d.list(v, p)
		if !ok {
			return nil
		}
		for i, item := range items {
			if s, ok := d.str(item, p.index(i)); ok {
				names = append(names, s)
			}
		}
	}
	var ops []ir.Operation
	for i, name := range names {
		if name == "write" {
			ops = append(ops, ir.WriteOperations...)
			continue
		}
		op := ir.Operation(name)
		if !op.Valid() {
			d.fail(p.index(i), nil, "unknown operation %q (want read, create, update, delete or write)", name)
			continue
		}
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return slices.Compact(ops)
}

// predicate decodes one predicate form:
//
//	authenticated | allow | deny
//	{owner: field} | {owner: {field: f, scope: resource|request|path}}
//	{flag: {subject: actor|resource, field: f, value: v}}
//	{relationship: collection}
//	{all: [p...]} | {any: [p...]} | {not: p}
func (d *decoder) predicate(v any, p Path) (ir.Predicate, bool) {
	if s, ok := v.(string); ok {
		switch s {
		case ir.KindAuthenticated:
			return ir.IsAuthenticated{}, true
		case ir.KindAllow:
			return ir.Allow{}, true
		case ir.KindDeny:
			return ir.Deny{}, true
		}
		d.fail(p, ir.ErrUnsupportedPredicate, "unknown predicate %q", s)
		return nil, false
	}
	m, ok := d.mapping(v, p)
	if !ok {
		return nil, false
	}
	if len(m) != 1 {
		d.fail(p, ir.ErrUnsupportedPredicate, "predicate must have exactly one key, got %s", strings.Join(sortedKeys(m), ", "))
		return nil, false
	}
	kind := sortedKeys(m)[0]
	arg, ap := m[kind], p.key(kind)
	switch kind {
	case ir.KindOwner:
		ref, ok := d.fieldRef(arg, ap)
		return ir.IsOwner{Field: ref}, ok
	case ir.KindFlag:
		return d.flag(arg, ap)
	case ir.KindRelationship:
		coll, ok := d.str(arg, ap)
		return ir.RelationshipExists{Collection: coll}, ok
	case ir.KindAll, ir.KindAny:
		items, ok := d.list(arg, ap)
		if !ok {
			return nil, false
		}
		terms := make([]ir.Predicate, 0, len(items))
		for i, item := range items {
			t, ok := d.predicate(item, ap.index(i))
			if !ok {
				return nil, false
			}
			terms = append(terms, t)
		}
		if kind == ir.KindAll {
			return ir.All{Terms: terms}, true
		}
		return ir.Any{Terms: terms}, true
	case ir.KindNot:
		t, ok := d.predicate(arg, ap)
		return ir.Not{Term: t}, ok
	}
	d.fail(p, ir.ErrUnsupportedPredicate, "unknown predicate kind %q", kind)
	return nil, false
}

// fieldRef accepts "field", "request.field", "resource.field", "$id", or
// {field, scope}.
func (d *decoder) fieldRef(v any, p Path) (ir.FieldRef, bool) {
	if s, ok := v.(string); ok {
		switch {
		case s == "$id":
			return ir.DocID(), true
		case strings.HasPrefix(s, "request."):
			return ir.Request(strings.TrimPrefix(s, "request.")), true
		case strings.HasPrefix(s, "resource."):
			return ir.Resource(strings.TrimPrefix(s, "resource.")), true
		case s == "":
			d.fail(p, nil, "empty field")
			return ir.FieldRef{}, false
		}
		return ir.Resource(s), true
	}
	m, ok := d.mapping(v, p)
	if !ok {
		return ir.FieldRef{}, false
	}
	d.onlyKeys(m, p, "field", "scope")
	ref := ir.FieldRef{Scope: ir.ScopeResource}
	if sc, present := m["scope"]; present {
		s, ok := d.str(sc, p.key("scope"))
		if !ok {
			return ref, false
		}
		ref.Scope = ir.Scope(s)
		switch ref.Scope {
		case ir.ScopeResource, ir.ScopeRequest:
		case ir.ScopePath:
			return ref, true
		default:
			d.fail(p.key("scope"), ir.ErrUnsupportedPredicate, "unknown scope %q", s)
			return ref, false
		}
	}
	ref.Field, ok = d.str(m["field"], p.key("field"))
	return ref, ok
}

func (d *decoder) flag(v any, p Path) (ir.Predicate, bool) {
	m, ok := d.mapping(v, p)
	if !ok {
		return nil, false
	}
	d.onlyKeys(m, p, "subject", "field", "value")
	f := ir.HasFlag{Subject: ir.SubjectActor}
	if s, present := m["subject"]; present {
		subj, ok := d.str(s, p.key("subject"))
		if !ok {
			return nil, false
		}
		f.Subject = ir.FlagSubject(subj)
		if f.Subject != ir.SubjectActor && f.Subject != ir.SubjectResource {
			d.fail(p.key("subject"), ir.ErrUnsupportedPredicate, "unknown flag subject %q", subj)
			return nil, false
		}
	}
	if f.Field, ok = d.str(m["field"], p.key("field")); !ok {
		return nil, false
	}
	raw, present := m["value"]
	if !present {
		f.Value = ir.IRBool(true)
		return f, true
	}
	val, err := ir.FromAny(raw)
	if err != nil {
		d.fail(p.key("value"), nil, "%v", err)
		return nil, false
	}
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	default:
		d.fail(p.key("value"), ir.ErrUnsupportedPredicate, "flag value must be a string, integer or boolean")
		return nil, false
	}
	f.Value = val
	return f, true
}

func (d *decoder) seed(v any, p Path) (ir.SeedRecord, bool) {
	m, ok := d.mapping(v, p)
	if !ok {
		return ir.SeedRecord{}, false
	}
	d.onlyKeys(m, p, "collection", "key", "data")
	var r ir.SeedRecord
	if r.Collection, ok = d.str(m["collection"], p.key("collection")); !ok {
		return r, false
	}
	if r.Key, ok = d.str(m["key"], p.key("key")); !ok {
		return r, false
	}
	raw, present := m["data"]
	if !present {
		d.fail(p.key("data"), nil, "missing data")
		return r, false
	}
	val, err := ir.FromAny(raw)
	if err != nil {
		d.fail(p.key("data"), nil, "%v", err)
		return r, false
	}
	obj, isObj := val.(ir.IRObject)
	if !isObj {
		d.fail(p.key("data"), nil, "data must be a mapping")
		return r, false
	}
	r.Payload = obj
	return r, true
}

func (d *decoder) mapping(v any, p Path) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		d.fail(p, nil, "expected a mapping, got %s", describe(v))
	}
	return m, ok
}

func (d *decoder) list(v any, p Path) ([]any, bool) {
	l, ok := v.([]any)
	if !ok {
		d.fail(p, nil, "expected a list, got %s", describe(v))
	}
	return l, ok
}

func (d *decoder) optionalList(v any, p Path) ([]any, bool) {
	if v == nil {
		return nil, true
	}
	return d.list(v, p)
}

func (d *decoder) str(v any, p Path) (string, bool) {
	s, ok := v.(string)
	switch {
	case v == nil:
		d.fail(p, nil, "missing value")
	case !ok:
		d.fail(p, nil, "expected a string, got %s", describe(v))
	}
	return s, ok
}

func (d *decoder) boolean(v any, p Path) (bool, bool) {
	b, ok := v.(bool)
	if !ok {
		d.fail(p, nil, "expected a boolean, got %s", describe(v))
	}
	return b, ok
}

func (d *decoder) onlyKeys(m map[string]any, p Path, allowed ...string) {
	for _, k := range sortedKeys(m) {
		if !slices.Contains(allowed, k) {
			d.fail(p.key(k), nil, "unknown key %q", k)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "nothing"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case []any:
		return "a list"
	case map[string]any:
		return "a mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
