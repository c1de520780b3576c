package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/provision/internal/ir"
)

func sampleRules() []ir.AccessRule {
	return []ir.AccessRule{
		{Collection: "widgets", Operation: ir.OpRead, Predicate: ir.IsAuthenticated{}},
		{Collection: "widgets", Operation: ir.OpCreate, Predicate: ir.IsOwner{Field: ir.Request("owner_id")}},
		{Collection: "widgets", Operation: ir.OpUpdate, Predicate: ir.IsOwner{Field: ir.Resource("owner_id")}},
		{Collection: "widgets", Operation: ir.OpUpdate, Predicate: ir.HasFlag{
			Subject: ir.SubjectActor, Field: "role", Value: ir.IRString("admin"),
		}},
		{Collection: "gadgets", Operation: ir.OpRead, Predicate: ir.All{Terms: []ir.Predicate{
			ir.IsAuthenticated{},
			ir.Any{Terms: []ir.Predicate{
				ir.HasFlag{Subject: ir.SubjectResource, Field: "visibility", Value: ir.IRString("public")},
				ir.IsOwner{Field: ir.Resource("owner_id")},
			}},
		}}},
		{Collection: "gadgets", Operation: ir.OpDelete, Predicate: ir.Deny{}},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCompileGolden(t *testing.T) {
	out, err := Compile(sampleRules())
	require.NoError(t, err)
	newGoldie(t).Assert(t, "widgets_gadgets", []byte(out))
}

func TestCompileHelpersEmittedOnce(t *testing.T) {
	out, err := Compile(sampleRules())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "function isAuthenticated()"))
	assert.Equal(t, 1, strings.Count(out, "function isOwner(uid)"))
	assert.Equal(t, 1, strings.Count(out, "function hasFlag(field, value)"))
	assert.NotContains(t, out, "function relationshipExists")
}

func TestCompileHelperDependencies(t *testing.T) {
	out, err := Compile([]ir.AccessRule{{
		Collection: "family_members",
		Operation:  ir.OpRead,
		Predicate:  ir.RelationshipExists{Collection: "pedagogy_profiles"},
	}})
	require.NoError(t, err)

	assert.Contains(t, out, "function isAuthenticated()")
	assert.Contains(t, out, "function relationshipExists(collection)")
	assert.Contains(t, out, "allow read: if relationshipExists('pedagogy_profiles');")
	assert.Less(t, strings.Index(out, "function isAuthenticated"), strings.Index(out, "function relationshipExists"))
}

func TestCompileConstantsNeedNoHelpers(t *testing.T) {
	out, err := Compile([]ir.AccessRule{
		{Collection: "service_centers", Operation: ir.OpRead, Predicate: ir.Allow{}},
		{Collection: "service_centers", Operation: ir.OpUpdate, Predicate: ir.Deny{}},
	})
	require.NoError(t, err)

	assert.NotContains(t, out, "function ")
	assert.Contains(t, out, "allow read: if true;")
	assert.Contains(t, out, "allow update: if false;")
}

func TestCompilePathOwnerAndNot(t *testing.T) {
	out, err := Compile([]ir.AccessRule{{
		Collection: "actors",
		Operation:  ir.OpDelete,
		Predicate: ir.All{Terms: []ir.Predicate{
			ir.IsOwner{Field: ir.DocID()},
			ir.Not{Term: ir.HasFlag{Subject: ir.SubjectResource, Field: "is_active", Value: ir.IRBool(true)}},
		}},
	}})
	require.NoError(t, err)
	assert.Contains(t, out, "allow delete: if isOwner(docId) && !(resource.data.is_active == true);")
}

func TestCompileDuplicateRulesCollapse(t *testing.T) {
	rule := ir.AccessRule{Collection: "likes", Operation: ir.OpRead, Predicate: ir.IsAuthenticated{}}
	out, err := Compile([]ir.AccessRule{rule, rule})
	require.NoError(t, err)
	assert.Contains(t, out, "allow read: if isAuthenticated();\n")
}

func TestCompileActorCollection(t *testing.T) {
	c := &Compiler{ActorCollection: "users"}
	out, err := c.Compile([]ir.AccessRule{{
		Collection: "reports",
		Operation:  ir.OpRead,
		Predicate:  ir.HasFlag{Subject: ir.SubjectActor, Field: "verification_status", Value: ir.IRString("verified")},
	}})
	require.NoError(t, err)
	assert.Contains(t, out, "/documents/users/$(request.auth.uid)")
}

type customPredicate struct{}

func (customPredicate) PredicateKind() string { return "time_of_day" }

func TestCompileUnsupportedPredicate(t *testing.T) {
	tests := []struct {
		name string
		pred ir.Predicate
	}{
		{"custom kind", customPredicate{}},
		{"nil", nil},
		{"nested custom", ir.Any{Terms: []ir.Predicate{ir.Allow{}, customPredicate{}}}},
		{"array value", ir.HasFlag{Subject: ir.SubjectResource, Field: "x", Value: ir.IRArray{}}},
		{"dotted actor flag", ir.HasFlag{Subject: ir.SubjectActor, Field: "a.b", Value: ir.IRBool(true)}},
		{"injection in field", ir.IsOwner{Field: ir.Resource("x) || true || (y")}},
		{"unknown scope", ir.IsOwner{Field: ir.FieldRef{Scope: "session", Field: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]ir.AccessRule{{Collection: "widgets", Operation: ir.OpRead, Predicate: tt.pred}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ir.ErrUnsupportedPredicate), "got %v", err)
		})
	}
}

func TestCompileInvalidRule(t *testing.T) {
	_, err := Compile([]ir.AccessRule{{Collection: "widgets", Operation: "write", Predicate: ir.Allow{}}})
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Compile([]ir.AccessRule{{Operation: ir.OpRead, Predicate: ir.Allow{}}})
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestCompileEmpty(t *testing.T) {
	out, err := Compile(nil)
	require.NoError(t, err)
	assert.Equal(t, "rules_version = '2';\n\nservice cloud.firestore {\n  match /databases/{database}/documents {\n  }\n}\n", out)
}

// Property: output is identical for every permutation of the input.
func TestCompilePermutationInvariance(t *testing.T) {
	rules := sampleRules()
	want, err := Compile(rules)
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		shuffled := rapid.Permutation(rules).Draw(t, "rules")
		got, err := Compile(shuffled)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("output changed under permutation:\n%s", got)
		}
	})
}
