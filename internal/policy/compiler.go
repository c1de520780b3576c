// Package policy compiles access rules into Firestore security rule text.
//
// Compilation is a pure function of its input: the same rule set, in any
// order, renders byte-identical text. Shared helper functions are emitted
// once at the top of the document, and only when some guard needs them.
// One match block is emitted per collection, sorted by name, with one
// guard per operation, sorted by operation name.
package policy

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/provision/internal/ir"
)

// DefaultActorCollection holds the per-user documents that actor flags are
// read from.
const DefaultActorCollection = "actors"

// ErrInvalidRule reports a rule that is structurally broken (no
// collection, unknown operation) rather than using an unknown predicate.
var ErrInvalidRule = errors.New("invalid access rule")

var identPath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
var ident = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compiler renders rule sets. The zero value is usable.
type Compiler struct {
	// ActorCollection defaults to DefaultActorCollection.
	ActorCollection string
}

// Compile renders rules with a default Compiler.
func Compile(rules []ir.AccessRule) (string, error) {
	return (&Compiler{}).Compile(rules)
}

func (c *Compiler) actorCollection() string {
	if c == nil || c.ActorCollection == "" {
		return DefaultActorCollection
	}
	return c.ActorCollection
}

type guardKey struct {
	collection string
	op         ir.Operation
}

// Compile renders the full rules document.
//
// Several rules for the same collection and operation are OR-combined.
// Identical terms collapse into one.
func (c *Compiler) Compile(rules []ir.AccessRule) (string, error) {
	actors := c.actorCollection()
	if !ident.MatchString(actors) {
		return "", fmt.Errorf("%w: actor collection %q", ErrInvalidRule, actors)
	}

	r := &renderer{used: make(map[helper]bool)}
	terms := make(map[guardKey][]expr)
	for i, rule := range rules {
		if rule.Collection == "" || !ident.MatchString(rule.Collection) {
			return "", fmt.Errorf("rule %d: %w: collection %q", i, ErrInvalidRule, rule.Collection)
		}
		if !rule.Operation.Valid() {
			return "", fmt.Errorf("rule %d (%s): %w: operation %q", i, rule.Collection, ErrInvalidRule, rule.Operation)
		}
		e, err := r.render(rule.Predicate)
		if err != nil {
			return "", fmt.Errorf("rule %d (%s %s): %w", i, rule.Collection, rule.Operation, err)
		}
		k := guardKey{rule.Collection, rule.Operation}
		terms[k] = append(terms[k], e)
	}

	byCollection := make(map[string][]ir.Operation)
	for k := range terms {
		byCollection[k.collection] = append(byCollection[k.collection], k.op)
	}
	collections := make([]string, 0, len(byCollection))
	for name := range byCollection {
		collections = append(collections, name)
	}
	slices.Sort(collections)

	var b strings.Builder
	b.WriteString("rules_version = '2';\n\n")
	b.WriteString("service cloud.firestore {\n")
	b.WriteString("  match /databases/{database}/documents {\n")

	for _, h := range helperOrder {
		if r.used[h] {
			b.WriteString(h.source(actors))
			b.WriteString("\n")
		}
	}

	for i, name := range collections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "    match /%s/{docId} {\n", name)
		ops := byCollection[name]
		slices.Sort(ops)
		for _, op := range ops {
			fmt.Fprintf(&b, "      allow %s: if %s;\n", op, joinOr(terms[guardKey{name, op}]))
		}
		b.WriteString("    }\n")
	}

	b.WriteString("  }\n")
	b.WriteString("}\n")
	return b.String(), nil
}

// joinOr sorts and deduplicates alternative guard expressions.
func joinOr(alternatives []expr) string {
	uniq := make(map[string]expr, len(alternatives))
	for _, e := range alternatives {
		uniq[e.src] = e
	}
	srcs := slices.Sorted(maps.Keys(uniq))
	if len(srcs) == 1 {
		return srcs[0]
	}
	parts := make([]string, len(srcs))
	for i, src := range srcs {
		parts[i] = nested(uniq[src])
	}
	return strings.Join(parts, " || ")
}

// Operator precedence, loosest first.
const (
	precOr = iota
	precAnd
	precAtom
)

type expr struct {
	src  string
	prec int
}

// nested renders e as an operand of && or ||. Compound operands are
// always parenthesized.
func nested(e expr) string {
	if e.prec == precAtom {
		return e.src
	}
	return "(" + e.src + ")"
}

func atom(s string) expr { return expr{src: s, prec: precAtom} }

type renderer struct {
	used map[helper]bool
}

func (r *renderer) use(h helper) {
	r.used[h] = true
	for _, dep := range h.deps() {
		r.use(dep)
	}
}

func (r *renderer) render(p ir.Predicate) (expr, error) {
	switch n := p.(type) {
	case nil:
		return expr{}, fmt.Errorf("%w: missing predicate", ir.ErrUnsupportedPredicate)
	case ir.Allow:
		return atom("true"), nil
	case ir.Deny:
		return atom("false"), nil
	case ir.IsAuthenticated:
		r.use(helperAuthenticated)
		return atom("isAuthenticated()"), nil
	case ir.IsOwner:
		ref, err := fieldRef(n.Field)
		if err != nil {
			return expr{}, err
		}
		r.use(helperOwner)
		return atom("isOwner(" + ref + ")"), nil
	case ir.HasFlag:
		return r.renderFlag(n)
	case ir.RelationshipExists:
		if !ident.MatchString(n.Collection) {
			return expr{}, fmt.Errorf("%w: relationship collection %q", ir.ErrUnsupportedPredicate, n.Collection)
		}
		r.use(helperRelationship)
		return atom("relationshipExists(" + quote(n.Collection) + ")"), nil
	case ir.All:
		return r.renderJoin(n.Terms, " && ", precAnd, "true")
	case ir.Any:
		return r.renderJoin(n.Terms, " || ", precOr, "false")
	case ir.Not:
		inner, err := r.render(n.Term)
		if err != nil {
			return expr{}, err
		}
		return atom("!(" + inner.src + ")"), nil
	default:
		return expr{}, fmt.Errorf("%w: kind %q (%T)", ir.ErrUnsupportedPredicate, p.PredicateKind(), p)
	}
}

func (r *renderer) renderJoin(terms []ir.Predicate, sep string, prec int, empty string) (expr, error) {
	if len(terms) == 0 {
		return atom(empty), nil
	}
	if len(terms) == 1 {
		return r.render(terms[0])
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		e, err := r.render(t)
		if err != nil {
			return expr{}, err
		}
		parts[i] = nested(e)
	}
	return expr{src: strings.Join(parts, sep), prec: prec}, nil
}

func (r *renderer) renderFlag(n ir.HasFlag) (expr, error) {
	value, err := literal(n.Value)
	if err != nil {
		return expr{}, err
	}
	switch n.Subject {
	case ir.SubjectActor:
		if !ident.MatchString(n.Field) {
			return expr{}, fmt.Errorf("%w: actor flag field %q must be a top-level field", ir.ErrUnsupportedPredicate, n.Field)
		}
		r.use(helperFlag)
		return atom("hasFlag(" + quote(n.Field) + ", " + value + ")"), nil
	case ir.SubjectResource:
		if !identPath.MatchString(n.Field) {
			return expr{}, fmt.Errorf("%w: field %q", ir.ErrUnsupportedPredicate, n.Field)
		}
		return atom("resource.data." + n.Field + " == " + value), nil
	default:
		return expr{}, fmt.Errorf("%w: flag subject %q", ir.ErrUnsupportedPredicate, n.Subject)
	}
}

func fieldRef(ref ir.FieldRef) (string, error) {
	if ref.Scope == ir.ScopePath {
		return "docId", nil
	}
	if !identPath.MatchString(ref.Field) {
		return "", fmt.Errorf("%w: field %q", ir.ErrUnsupportedPredicate, ref.Field)
	}
	switch ref.Scope {
	case ir.ScopeResource, "":
		return "resource.data." + ref.Field, nil
	case ir.ScopeRequest:
		return "request.resource.data." + ref.Field, nil
	default:
		return "", fmt.Errorf("%w: field scope %q", ir.ErrUnsupportedPredicate, ref.Scope)
	}
}

func literal(v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case ir.IRString:
		return quote(string(val)), nil
	case ir.IRBool:
		return strconv.FormatBool(bool(val)), nil
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10), nil
	default:
		return "", fmt.Errorf("%w: flag value of type %T", ir.ErrUnsupportedPredicate, v)
	}
}

var quoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)

func quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}
