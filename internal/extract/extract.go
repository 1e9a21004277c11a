// Package extract turns parsed syntax trees into entities and dependency
// edges. Extraction is the first pass per file; attribution is the second
// and requires the file's complete entity list. Both are pure with respect
// to the store: they produce a Batch that internal/store merges atomically.
package extract

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/strata/internal/lang"
	"github.com/jward/strata/internal/store"
)

// candidate is one rule match before deduplication.
type candidate struct {
	kind store.EntityKind
	name string
	node *sitter.Node
}

// Entities walks the tree with the language's entity rules and returns the
// deduplicated entity list, including a synthetic file-level module entity
// spanning the whole file. Nested constructs all survive: a method inside
// an impl block yields both the block and the method.
//
// Overlapping rules capturing the same node (e.g. a generic type rule
// firing where a struct rule also matched) are resolved by kind
// specificity: the most specific kind wins the span.
func Entities(src []byte, language, normPath string, tree *sitter.Tree) ([]store.Entity, error) {
	rules, ok := lang.Rules(language)
	if !ok {
		return nil, nil
	}

	type span struct{ start, end uint32 }
	best := make(map[span]candidate)

	for _, rule := range rules.Entities {
		query, err := lang.CompileQuery(language, rule.Pattern)
		if err != nil {
			return nil, err
		}
		cursor := sitter.NewQueryCursor()
		cursor.Exec(query, tree.RootNode())
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			def, name := capturedDefName(query, match, src)
			if def == nil || name == "" {
				continue
			}
			sp := span{def.StartByte(), def.EndByte()}
			cand := candidate{kind: rule.Kind, name: name, node: def}
			if prev, seen := best[sp]; !seen || store.Specificity(cand.kind) < store.Specificity(prev.kind) {
				best[sp] = cand
			}
		}
		cursor.Close()
	}

	lineCount := bytes.Count(src, []byte{'\n'}) + 1
	entities := make([]store.Entity, 0, len(best)+1)
	entities = append(entities, moduleEntity(src, language, normPath, lineCount))

	for _, cand := range best {
		startLine := int(cand.node.StartPoint().Row) + 1
		endLine := int(cand.node.EndPoint().Row) + 1
		entities = append(entities, store.Entity{
			Key:          store.EntityKey(language, cand.kind, cand.name, normPath, startLine, endLine),
			Language:     language,
			Kind:         cand.kind,
			Name:         cand.name,
			Path:         normPath,
			StartLine:    startLine,
			EndLine:      endLine,
			Signature:    signatureFor(cand.node, src, language, cand.name),
			CurrentCode:  string(src[cand.node.StartByte():cand.node.EndByte()]),
			CurrentInd:   true,
			FutureInd:    true,
			FutureAction: store.ActionNone,
		})
	}

	// Deterministic order: outer entities before nested ones, then by key.
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].StartLine != entities[j].StartLine {
			return entities[i].StartLine < entities[j].StartLine
		}
		if entities[i].EndLine != entities[j].EndLine {
			return entities[i].EndLine > entities[j].EndLine
		}
		return entities[i].Key < entities[j].Key
	})
	return entities, nil
}

// moduleEntity is the file-level entity every file gets. It doubles as the
// attribution fallback for references outside any extracted entity, such
// as top-level statements.
func moduleEntity(src []byte, language, normPath string, lineCount int) store.Entity {
	base := filepath.Base(normPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return store.Entity{
		Key:          store.EntityKey(language, store.KindModule, name, normPath, 1, lineCount),
		Language:     language,
		Kind:         store.KindModule,
		Name:         name,
		Path:         normPath,
		StartLine:    1,
		EndLine:      lineCount,
		Signature:    "module " + name,
		CurrentInd:   true,
		FutureInd:    true,
		FutureAction: store.ActionNone,
	}
}

// capturedDefName pulls the @def node and @name text out of a query match.
func capturedDefName(query *sitter.Query, match *sitter.QueryMatch, src []byte) (*sitter.Node, string) {
	var def *sitter.Node
	var name string
	for _, capture := range match.Captures {
		switch query.CaptureNameForId(capture.Index) {
		case "def":
			def = capture.Node
		case "name":
			name = capture.Node.Content(src)
		}
	}
	return def, name
}

// NormalizePath converts path to the key-safe normalized form: relative to
// root when possible, forward slashes regardless of host syntax, and no
// colon characters (they are key field separators).
func NormalizePath(root, path string) string {
	p := path
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	p = filepath.ToSlash(p)
	return strings.ReplaceAll(p, ":", "")
}
