package extract

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/strata/internal/lang"
	"github.com/jward/strata/internal/store"
)

// parseSource is a test helper wrapping the grammar adapter.
func parseSource(t *testing.T, src, language, path string) *sitter.Tree {
	t.Helper()
	tree, err := lang.Parse(context.Background(), []byte(src), language, path)
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

const greetGo = `package greet

func hello() {
	goodbye()
}

func goodbye() {}

func good_morning() {}

func good_night() {}
`

func extractGreet(t *testing.T) []store.Entity {
	t.Helper()
	tree := parseSource(t, greetGo, "go", "greet.go")
	entities, err := Entities([]byte(greetGo), "go", "greet.go", tree)
	require.NoError(t, err)
	return entities
}

func findEntity(entities []store.Entity, kind store.EntityKind, name string) *store.Entity {
	for i := range entities {
		if entities[i].Kind == kind && entities[i].Name == name {
			return &entities[i]
		}
	}
	return nil
}

func TestEntities_GoFunctions(t *testing.T) {
	t.Parallel()
	entities := extractGreet(t)

	// Four functions plus the file-level module entity.
	require.Len(t, entities, 5)

	var functions []store.Entity
	for _, e := range entities {
		if e.Kind == store.KindFunction {
			functions = append(functions, e)
		}
	}
	require.Len(t, functions, 4)

	hello := findEntity(entities, store.KindFunction, "hello")
	require.NotNil(t, hello)
	assert.Equal(t, "go:function:hello:greet.go:3-5", hello.Key)
	assert.Equal(t, 3, hello.StartLine)
	assert.Equal(t, 5, hello.EndLine)
	assert.Contains(t, hello.CurrentCode, "goodbye()")
	assert.Equal(t, "private func hello()", hello.Signature)

	mod := findEntity(entities, store.KindModule, "greet")
	require.NotNil(t, mod, "every file gets a module entity")
	assert.Equal(t, 1, mod.StartLine)
	assert.Equal(t, 12, mod.EndLine)
}

func TestEntities_UniqueKeys(t *testing.T) {
	t.Parallel()
	entities := extractGreet(t)

	seen := make(map[string]bool)
	for _, e := range entities {
		assert.False(t, seen[e.Key], "duplicate key %s", e.Key)
		seen[e.Key] = true
	}
}

func TestEntities_IdempotentExtraction(t *testing.T) {
	t.Parallel()

	first := extractGreet(t)
	second := extractGreet(t)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Key, second[i].Key)
		assert.Equal(t, first[i].Signature, second[i].Signature)
	}
}

const shapesRust = `trait Greeter {
    fn hi(&self);
}

struct Console;

impl Greeter for Console {
    fn hi(&self) {
        helper();
    }
}

fn helper() {}
`

func TestEntities_RustNesting(t *testing.T) {
	t.Parallel()
	tree := parseSource(t, shapesRust, "rust", "shapes.rs")
	entities, err := Entities([]byte(shapesRust), "rust", "shapes.rs", tree)
	require.NoError(t, err)

	impl := findEntity(entities, store.KindImpl, "Console")
	require.NotNil(t, impl, "impl block extracted")

	method := findEntity(entities, store.KindMethod, "hi")
	require.NotNil(t, method, "method inside impl extracted as its own entity")
	assert.Greater(t, method.StartLine, impl.StartLine)
	assert.Less(t, method.EndLine, impl.EndLine)

	// The generic function rule also fires on `fn hi`; the method rule wins
	// the span. Only the free function remains kind=function.
	assert.Nil(t, findEntity(entities, store.KindFunction, "hi"))
	require.NotNil(t, findEntity(entities, store.KindFunction, "helper"))

	require.NotNil(t, findEntity(entities, store.KindTrait, "Greeter"))
	require.NotNil(t, findEntity(entities, store.KindStruct, "Console"))
}

func TestEntities_PythonMethodSpecificity(t *testing.T) {
	t.Parallel()
	src := `class Greeter:
    def hi(self):
        pass

def free():
    pass
`
	tree := parseSource(t, src, "python", "app.py")
	entities, err := Entities([]byte(src), "python", "app.py", tree)
	require.NoError(t, err)

	// `def hi` matches both the method and the function rule on the same
	// span; kind specificity dedupes to method.
	assert.NotNil(t, findEntity(entities, store.KindMethod, "hi"))
	assert.Nil(t, findEntity(entities, store.KindFunction, "hi"))
	assert.NotNil(t, findEntity(entities, store.KindFunction, "free"))
	assert.NotNil(t, findEntity(entities, store.KindStruct, "Greeter"))
}

func TestEntities_GoTypeRuleDedup(t *testing.T) {
	t.Parallel()
	src := `package types

type Point struct {
	X int
}

type Reader interface {
	Read() int
}

type Alias Point
`
	tree := parseSource(t, src, "go", "types.go")
	entities, err := Entities([]byte(src), "go", "types.go", tree)
	require.NoError(t, err)

	// The generic type_spec rule overlaps the struct and interface rules;
	// the specific kinds must win their spans.
	assert.NotNil(t, findEntity(entities, store.KindStruct, "Point"))
	assert.Nil(t, findEntity(entities, store.KindTypeAlias, "Point"))
	assert.NotNil(t, findEntity(entities, store.KindTrait, "Reader"))
	assert.Nil(t, findEntity(entities, store.KindTypeAlias, "Reader"))
	assert.NotNil(t, findEntity(entities, store.KindTypeAlias, "Alias"))
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "src/main.go", NormalizePath("/repo", "/repo/src/main.go"))
	assert.Equal(t, "main.go", NormalizePath("", "main.go"))
	// Paths outside the root stay absolute-ish but slash-normalized.
	assert.Equal(t, "/elsewhere/x.go", NormalizePath("/repo", "/elsewhere/x.go"))
	// Colons are key field separators and never survive normalization.
	assert.NotContains(t, NormalizePath("", "C:/weird:name.go"), ":")
}

func TestParse_SyntaxErrorFailsWholeFile(t *testing.T) {
	t.Parallel()

	_, err := lang.Parse(context.Background(), []byte("package broken\n\nfunc oops( {\n"), "go", "broken.go")
	require.Error(t, err)
	var perr *lang.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "broken.go", perr.Path)
	assert.Positive(t, perr.Line)
}
