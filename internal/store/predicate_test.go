package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredicate_MatchSemantics(t *testing.T) {
	t.Parallel()

	record := map[string]string{
		"kind":          "function",
		"name":          "hello",
		"path":          "internal/app/main.go",
		"future_action": "none",
	}
	fields := map[string]bool{
		"kind": true, "name": true, "path": true, "future_action": true,
	}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"empty matches all", "", true},
		{"equality hit", "kind = function", true},
		{"equality miss", "kind = method", false},
		{"inequality hit", "kind != method", true},
		{"inequality miss", "name != hello", false},
		{"substring hit", "path ~ internal/", true},
		{"substring miss", "path ~ cmd/", false},
		{"conjunction all hold", "kind = function, path ~ internal/", true},
		{"conjunction one fails", "kind = function, path ~ cmd/", false},
		{"disjunction first holds", "kind = function ; kind = method", true},
		{"disjunction second holds", "kind = method ; name = hello", true},
		{"disjunction none hold", "kind = method ; name = goodbye", false},
		{"mixed and/or", "kind = method, name = hello ; future_action = none", true},
		{"quoted value", `name = "hello"`, true},
		{"whitespace tolerated", "  kind   =   function  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := ParsePredicate(tt.input, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred.Match(record))
		})
	}
}

// Quoted values are opaque to the splitter: separators inside quotes belong
// to the value, not the predicate structure.
func TestParsePredicate_QuotedSeparators(t *testing.T) {
	t.Parallel()

	fields := map[string]bool{"name": true, "signature": true}
	record := map[string]string{"name": "a,b", "signature": "f(x; y)"}

	pred, err := ParsePredicate(`name = "a,b"`, fields)
	require.NoError(t, err)
	assert.True(t, pred.Match(record))

	pred, err = ParsePredicate(`signature ~ "; y"`, fields)
	require.NoError(t, err)
	assert.True(t, pred.Match(record))

	pred, err = ParsePredicate(`name = "a,b", signature ~ "(x"`, fields)
	require.NoError(t, err)
	assert.True(t, pred.Match(record))

	pred, err = ParsePredicate(`name = "c,d" ; signature ~ "; y"`, fields)
	require.NoError(t, err)
	assert.True(t, pred.Match(record))
}

func TestParsePredicate_Malformed(t *testing.T) {
	t.Parallel()

	fields := map[string]bool{"kind": true}
	for _, bad := range []string{
		"kind",              // no operator
		"= function",        // no field
		"bogus = function",  // unknown field
		"kind = a, , b = c", // empty comparison
		"kind = a ; ",       // empty group
	} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParsePredicate(bad, fields)
			require.Error(t, err)
			var qe *QueryError
			assert.ErrorAs(t, err, &qe, "want QueryError for %q", bad)
		})
	}
}

func TestReadEntities_Filtered(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a := testEntity("alpha", "x.go", 1, 2)
	b := testEntity("beta", "x.go", 4, 5)
	require.NoError(t, s.MergeBatch(testBatch("x.go", []Entity{a, b}, nil)))

	got, err := s.ReadEntities("name = alpha")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.Key, got[0].Key)

	got, err = s.ReadEntities("kind = function")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ReadEntities("current_ind = true, future_action = none")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.ReadEntities("nonsense = 1")
	var qe *QueryError
	assert.ErrorAs(t, err, &qe)
}

func TestReadEdges_Filtered(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a := testEntity("alpha", "x.go", 1, 2)
	b := testEntity("beta", "x.go", 4, 5)
	require.NoError(t, s.MergeBatch(testBatch("x.go", []Entity{a, b}, []Edge{
		{FromKey: a.Key, ToKey: b.Key, Type: EdgeDependsOn},
		{FromKey: a.Key, ToKey: ExternalKey("go", KindFunction, "Printf"), Type: EdgeDependsOn},
	})))

	got, err := s.ReadEdges("to_key ~ external")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, IsExternalKey(got[0].ToKey))

	got, err = s.ReadEdges("edge_type = depends_on")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
