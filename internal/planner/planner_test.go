package planner

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/registry"
)

func testRegistry(t testing.TB, names ...string) *registry.Registry {
	r := registry.New()
	for _, n := range names {
		require.NoError(t, r.Register(ir.CollectionSchema{Name: n}))
	}
	return r
}

func pattern(coll string, fields ...string) ir.QueryPattern {
	p := ir.QueryPattern{Collection: coll}
	for _, f := range fields {
		parsed, err := ir.ParseIndexField(f)
		if err != nil {
			panic(err)
		}
		p.Fields = append(p.Fields, parsed)
	}
	return p
}

func TestPlanEmptyEntryForEveryCollection(t *testing.T) {
	plan, err := Plan(testRegistry(t, "actors", "likes"), nil)
	require.NoError(t, err)

	assert.Equal(t, IndexPlan{"actors": {}, "likes": {}}, plan)
	assert.Equal(t, 0, plan.Count())
}

func TestPlanDeduplicates(t *testing.T) {
	plan, err := Plan(testRegistry(t, "feed_items"), []ir.QueryPattern{
		pattern("feed_items", "author_id", "created_at desc"),
		pattern("feed_items", "type", "created_at desc"),
		pattern("feed_items", "author_id asc", "created_at desc"),
	})
	require.NoError(t, err)

	require.Len(t, plan["feed_items"], 2)
	assert.Equal(t, "author_id:asc,created_at:desc", plan["feed_items"][0].Key())
	assert.Equal(t, "type:asc,created_at:desc", plan["feed_items"][1].Key())
}

func TestPlanSeparatorsInFieldNames(t *testing.T) {
	plan, err := Plan(testRegistry(t, "w"), []ir.QueryPattern{
		{Collection: "w", Fields: []ir.IndexField{{Field: "a", Direction: ir.Asc}, {Field: "b", Direction: ir.Asc}}},
		{Collection: "w", Fields: []ir.IndexField{{Field: "a:asc,b", Direction: ir.Asc}}},
	})
	require.NoError(t, err)

	require.Len(t, plan["w"], 2)
	assert.NotEqual(t, plan["w"][0].Key(), plan["w"][1].Key())
}

func TestPlanDirectionIsPartOfIdentity(t *testing.T) {
	plan, err := Plan(testRegistry(t, "likes"), []ir.QueryPattern{
		pattern("likes", "user_id", "created_at"),
		pattern("likes", "user_id", "created_at desc"),
	})
	require.NoError(t, err)
	assert.Len(t, plan["likes"], 2)
}

func TestPlanKeepsUnknownCollections(t *testing.T) {
	plan, err := Plan(testRegistry(t, "widgets"), []ir.QueryPattern{pattern("ghost", "a", "b")})
	require.NoError(t, err)
	assert.Len(t, plan["ghost"], 1)
	assert.Empty(t, plan["widgets"])
}

func TestPlanRejectsInvalidPatterns(t *testing.T) {
	reg := testRegistry(t, "widgets")
	tests := []ir.QueryPattern{
		{Collection: "widgets"},
		{Fields: []ir.IndexField{{Field: "a"}}},
		{Collection: "widgets", Fields: []ir.IndexField{{Field: ""}}},
		{Collection: "widgets", Fields: []ir.IndexField{{Field: "a", Direction: "up"}}},
	}
	for _, p := range tests {
		_, err := Plan(reg, []ir.QueryPattern{p})
		assert.True(t, errors.Is(err, ir.ErrInvalidPattern), "pattern %+v: %v", p, err)
	}
}

// Property: the plan does not depend on pattern order or repetition.
func TestPlanOrderIndependence(t *testing.T) {
	reg := testRegistry(t, "a", "b")
	fieldGen := rapid.Custom(func(t *rapid.T) ir.IndexField {
		return ir.IndexField{
			Field:     rapid.SampledFrom([]string{"x", "y", "z"}).Draw(t, "field"),
			Direction: rapid.SampledFrom([]ir.Direction{ir.Asc, ir.Desc, ""}).Draw(t, "dir"),
		}
	})
	patternGen := rapid.Custom(func(t *rapid.T) ir.QueryPattern {
		return ir.QueryPattern{
			Collection: rapid.SampledFrom([]string{"a", "b"}).Draw(t, "coll"),
			Fields:     rapid.SliceOfN(fieldGen, 1, 3).Draw(t, "fields"),
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		patterns := rapid.SliceOf(patternGen).Draw(t, "patterns")
		shuffled := rapid.Permutation(patterns).Draw(t, "shuffled")
		doubled := append(append([]ir.QueryPattern{}, shuffled...), patterns...)

		want, err := Plan(reg, patterns)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Plan(reg, doubled)
		if err != nil {
			t.Fatal(err)
		}
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			t.Fatalf("plan changed with order:\n%s\n%s", wantJSON, gotJSON)
		}
	})
}

func TestFirestoreIndexesGolden(t *testing.T) {
	plan, err := Plan(testRegistry(t, "comments", "actors"), []ir.QueryPattern{
		pattern("comments", "feed_item_id", "created_at desc"),
		pattern("actors", "email"),
		pattern("actors", "verification_status", "type"),
	})
	require.NoError(t, err)

	out, err := json.MarshalIndent(FirestoreIndexes(plan), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "firestore_indexes", out)
}
