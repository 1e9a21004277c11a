// Package strata turns multi-language source trees into a queryable graph
// of code entities and dependency edges, with a temporal versioning layer
// so that proposed-but-unapplied edits can be represented, validated, and
// diffed before being written back to source files. It is built on
// tree-sitter and SQLite and covers 7 languages: Go, Python, JavaScript,
// TypeScript, Rust, Java, and Ruby.
//
// # Pipeline
//
// Strata operates in two passes per file plus a temporal cycle:
//
//  1. Extract: parse with tree-sitter, apply the language's declarative
//     extraction rules, and produce uniquely-keyed entities (functions,
//     methods, types, impl blocks, the file-level module) with spans and
//     interface signatures.
//
//  2. Attribute: walk every reference/call site, attribute it to the most
//     specific enclosing entity, and emit depends_on, contains, and
//     implements edges. Unresolved targets get external placeholder keys
//     and are re-pointed once their definition is ingested.
//
//  3. Propose/validate/diff/promote: edits set an entity's future fields,
//     preflight validation re-parses the proposed code, the diff generator
//     emits the ordered change set, and promotion commits future state
//     into current state.
//
// # Usage
//
// Create an Engine, ingest a directory, propose an edit, and walk the
// temporal cycle:
//
//	e, err := strata.New(".strata/graph.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	report, err := e.IngestDirectory(ctx, "path/to/project")
//
//	err = e.Propose(key, strata.ActionEdit, newBody, false)
//	vr, err := e.Validate(ctx)
//	changes, err := e.Diff()
//	// ... apply changes externally ...
//	_, err = e.PromoteAll()
//
// # Queries
//
// [Engine.Entities] and [Engine.Edges] accept a small predicate language
// over stored attributes: `field = value`, `field != value`,
// `field ~ pattern` (substring), commas for conjunction and semicolons for
// disjunction. For example:
//
//	kind = function, path ~ internal/ ; kind = method
//
// # Identity
//
// Every entity's key has the form language:kind:name:path:start-end and is
// deterministic: re-ingesting byte-identical source reproduces the
// identical key set. Unresolved external symbols use the reserved
// language:kind:name:external:0 placeholder.
//
// # Incremental Ingestion
//
// [Engine.Ingest] detects unchanged files via content hashing and skips
// them. Re-ingesting a changed file supersedes its previous key set; stale
// keys and their edges are removed, while pending proposals on surviving
// keys are preserved.
package strata
