package extract

import (
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/strata/internal/lang"
	"github.com/jward/strata/internal/store"
)

// Edges is the second pass per file: it attributes every reference/call
// site to its containing entity and emits the file's edge set. It requires
// the file's complete entity list, so it never interleaves with extraction
// of the same file.
//
// Three edge families come out of this pass:
//   - depends_on: call site -> callee, attributed to the most specific
//     enclosing entity
//   - contains: lexical nesting between extracted entities
//   - implements: impl/interface clauses matched by the language's rules
func Edges(src []byte, language, normPath string, tree *sitter.Tree, entities []store.Entity) ([]store.Edge, []store.Diagnostic) {
	rules, ok := lang.Rules(language)
	if !ok {
		return nil, nil
	}

	var edges []store.Edge
	var diags []store.Diagnostic
	seen := make(map[store.Edge]bool)
	add := func(e store.Edge) {
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}

	for _, e := range containsEdges(entities) {
		add(e)
	}

	refEdges, refDiags := dependsOnEdges(src, language, normPath, tree, rules, entities)
	for _, e := range refEdges {
		add(e)
	}
	diags = append(diags, refDiags...)

	for _, e := range implementsEdges(src, language, tree, rules, entities) {
		add(e)
	}

	return edges, diags
}

// containsEdges links each entity to its smallest strictly-containing
// parent. The file module entity is the root of the hierarchy.
func containsEdges(entities []store.Entity) []store.Edge {
	var edges []store.Edge
	for i := range entities {
		child := &entities[i]
		var parent *store.Entity
		for j := range entities {
			p := &entities[j]
			if i == j || p.Span() <= child.Span() {
				continue
			}
			if p.StartLine > child.StartLine || p.EndLine < child.EndLine {
				continue
			}
			if parent == nil || p.Span() < parent.Span() ||
				(p.Span() == parent.Span() && p.Key < parent.Key) {
				parent = p
			}
		}
		if parent != nil {
			edges = append(edges, store.Edge{
				FromKey: parent.Key,
				ToKey:   child.Key,
				Type:    store.EdgeContains,
			})
		}
	}
	return edges
}

// dependsOnEdges runs the reference rules and attributes each call site.
func dependsOnEdges(src []byte, language, normPath string, tree *sitter.Tree, rules *lang.RuleSet, entities []store.Entity) ([]store.Edge, []store.Diagnostic) {
	var edges []store.Edge
	var diags []store.Diagnostic

	for _, rule := range rules.Refs {
		query, err := lang.CompileQuery(language, rule.Pattern)
		if err != nil {
			continue // rule tables are static; a bad pattern is caught by tests
		}
		cursor := sitter.NewQueryCursor()
		cursor.Exec(query, tree.RootNode())
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			var call *sitter.Node
			var callee string
			for _, capture := range match.Captures {
				switch query.CaptureNameForId(capture.Index) {
				case "call":
					call = capture.Node
				case "callee":
					callee = capture.Node.Content(src)
				}
			}
			if call == nil || callee == "" {
				continue
			}

			line := int(call.StartPoint().Row) + 1
			from, diag := attributeLine(line, normPath, entities)
			if diag != nil {
				diags = append(diags, *diag)
			}
			if from == nil {
				continue // no entities at all; nothing to attach to
			}
			edges = append(edges, store.Edge{
				FromKey: from.Key,
				ToKey:   targetKey(language, callee, entities),
				Type:    store.EdgeDependsOn,
			})
		}
		cursor.Close()
	}
	return edges, diags
}

// attributeLine selects the containing entity for a source line: every
// entity whose span contains the line, narrowed by (1) smallest span
// width, (2) kind specificity, (3) key order. The two-level tie-break is
// what keeps a call inside a method attributed to the method rather than
// the enclosing impl block. An empty containment set falls back to the
// file-level module entity and surfaces a diagnostic; that fallback is
// policy, not an error.
func attributeLine(line int, normPath string, entities []store.Entity) (*store.Entity, *store.Diagnostic) {
	var best *store.Entity
	for i := range entities {
		e := &entities[i]
		if line < e.StartLine || line > e.EndLine {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		switch {
		case e.Span() < best.Span():
			best = e
		case e.Span() == best.Span() && store.Specificity(e.Kind) < store.Specificity(best.Kind):
			best = e
		case e.Span() == best.Span() && store.Specificity(e.Kind) == store.Specificity(best.Kind) && e.Key < best.Key:
			best = e
		}
	}
	if best != nil {
		return best, nil
	}

	// Out-of-span reference: fall back to the file module entity.
	for i := range entities {
		if entities[i].Kind == store.KindModule {
			return &entities[i], &store.Diagnostic{
				Kind:    store.DiagAttributionAmbiguity,
				Path:    normPath,
				Line:    line,
				Message: fmt.Sprintf("reference at line %d outside every entity span; attributed to file module", line),
			}
		}
	}
	return nil, &store.Diagnostic{
		Kind:    store.DiagAttributionAmbiguity,
		Path:    normPath,
		Line:    line,
		Message: fmt.Sprintf("reference at line %d has no containing entity and no file module", line),
	}
}

// targetKey resolves a callee name against this file's entities, preferring
// callables. Unresolved names get the external placeholder; resolution
// against the rest of the ingestion scope happens later in the store.
func targetKey(language, callee string, entities []store.Entity) string {
	var candidates []*store.Entity
	for i := range entities {
		if entities[i].Name == callee {
			candidates = append(candidates, &entities[i])
		}
	}
	if len(candidates) == 0 {
		return store.ExternalKey(language, store.KindFunction, callee)
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := store.Specificity(candidates[i].Kind), store.Specificity(candidates[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Key < candidates[j].Key
	})
	return candidates[0].Key
}

// implementsEdges matches the language's impl rules and links the
// implementing type to the trait/interface entity, or to an external
// placeholder when the trait is defined elsewhere.
func implementsEdges(src []byte, language string, tree *sitter.Tree, rules *lang.RuleSet, entities []store.Entity) []store.Edge {
	var edges []store.Edge
	for _, rule := range rules.Impls {
		query, err := lang.CompileQuery(language, rule.Pattern)
		if err != nil {
			continue
		}
		cursor := sitter.NewQueryCursor()
		cursor.Exec(query, tree.RootNode())
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			var typeName, traitName string
			for _, capture := range match.Captures {
				switch query.CaptureNameForId(capture.Index) {
				case "name":
					typeName = capture.Node.Content(src)
				case "trait":
					traitName = capture.Node.Content(src)
				}
			}
			if typeName == "" || traitName == "" {
				continue
			}

			from := namedEntity(entities, typeName, store.KindImpl, store.KindStruct)
			if from == nil {
				continue
			}
			toKey := store.ExternalKey(language, store.KindTrait, traitName)
			if to := namedEntity(entities, traitName, store.KindTrait); to != nil {
				toKey = to.Key
			}
			edges = append(edges, store.Edge{FromKey: from.Key, ToKey: toKey, Type: store.EdgeImplements})
		}
		cursor.Close()
	}
	return edges
}

// namedEntity finds the first entity with the given name whose kind is in
// kinds, honoring the order of kinds as preference.
func namedEntity(entities []store.Entity, name string, kinds ...store.EntityKind) *store.Entity {
	for _, kind := range kinds {
		for i := range entities {
			if entities[i].Name == name && entities[i].Kind == kind {
				return &entities[i]
			}
		}
	}
	return nil
}
