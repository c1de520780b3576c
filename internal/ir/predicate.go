package ir

// Predicate is a node of an access-rule expression tree. Predicates are
// data: the policy compiler renders them, nothing evaluates them.
//
// The interface is open so callers can bring their own node types; the
// compiler rejects kinds it does not know with ErrUnsupportedPredicate.
type Predicate interface {
	PredicateKind() string
}

// Predicate kinds understood by the policy compiler.
const (
	KindAuthenticated = "authenticated"
	KindOwner         = "owner"
	KindFlag          = "flag"
	KindRelationship  = "relationship"
	KindAll           = "all"
	KindAny           = "any"
	KindNot           = "not"
	KindAllow         = "allow"
	KindDeny          = "deny"
)

// Scope says where a FieldRef is read from.
type Scope string

const (
	// ScopeResource is the stored document (resource.data).
	ScopeResource Scope = "resource"
	// ScopeRequest is the incoming document on create/update
	// (request.resource.data).
	ScopeRequest Scope = "request"
	// ScopePath is the document id from the match path.
	ScopePath Scope = "path"
)

// FieldRef names a field in a Scope. Field is ignored for ScopePath.
type FieldRef struct {
	Scope Scope
	Field string
}

// Resource is shorthand for a resource-scoped field.
func Resource(field string) FieldRef { return FieldRef{Scope: ScopeResource, Field: field} }

// Request is shorthand for a request-scoped field.
func Request(field string) FieldRef { return FieldRef{Scope: ScopeRequest, Field: field} }

// DocID refers to the document id itself.
func DocID() FieldRef { return FieldRef{Scope: ScopePath} }

// IsAuthenticated holds when the request carries an identity.
type IsAuthenticated struct{}

func (IsAuthenticated) PredicateKind() string { return KindAuthenticated }

// IsOwner holds when the requester's uid equals Field.
type IsOwner struct {
	Field FieldRef
}

func (IsOwner) PredicateKind() string { return KindOwner }

// FlagSubject says whose document a HasFlag reads.
type FlagSubject string

const (
	// SubjectActor is the requesting actor's own document.
	SubjectActor FlagSubject = "actor"
	// SubjectResource is the document being accessed.
	SubjectResource FlagSubject = "resource"
)

// HasFlag holds when Field of the subject document equals Value.
// Value must be an IRString, IRInt, or IRBool.
type HasFlag struct {
	Subject FlagSubject
	Field   string
	Value   IRValue
}

func (HasFlag) PredicateKind() string { return KindFlag }

// RelationshipExists holds when Collection has a document keyed by the
// requester's uid.
type RelationshipExists struct {
	Collection string
}

func (RelationshipExists) PredicateKind() string { return KindRelationship }

// All is a conjunction. An empty All always holds.
type All struct {
	Terms []Predicate
}

func (All) PredicateKind() string { return KindAll }

// Any is a disjunction. An empty Any never holds.
type Any struct {
	Terms []Predicate
}

func (Any) PredicateKind() string { return KindAny }

// Not negates Term.
type Not struct {
	Term Predicate
}

func (Not) PredicateKind() string { return KindNot }

// Allow always holds.
type Allow struct{}

func (Allow) PredicateKind() string { return KindAllow }

// Deny never holds.
type Deny struct{}

func (Deny) PredicateKind() string { return KindDeny }

// WalkPredicate calls fn for p and every nested term, depth first.
// Unknown kinds are visited but not descended into.
func WalkPredicate(p Predicate, fn func(Predicate)) {
	if p == nil {
		return
	}
	fn(p)
	switch n := p.(type) {
	case All:
		for _, t := range n.Terms {
			WalkPredicate(t, fn)
		}
	case Any:
		for _, t := range n.Terms {
			WalkPredicate(t, fn)
		}
	case Not:
		WalkPredicate(n.Term, fn)
	}
}

// RelationshipTargets lists collections referenced by RelationshipExists
// nodes anywhere in p.
func RelationshipTargets(p Predicate) []string {
	var out []string
	WalkPredicate(p, func(n Predicate) {
		if r, ok := n.(RelationshipExists); ok {
			out = append(out, r.Collection)
		}
	})
	return out
}
