package strata

import (
	"github.com/jward/strata/internal/diffgen"
	"github.com/jward/strata/internal/preflight"
	"github.com/jward/strata/internal/store"
)

// Public type aliases for internal types used in the Engine API. These are
// Go type aliases (=) — identical to the internal types at compile time.

type Store = store.Store
type Entity = store.Entity
type Edge = store.Edge
type Batch = store.Batch
type Diagnostic = store.Diagnostic
type EntityKind = store.EntityKind
type FutureAction = store.FutureAction
type EdgeType = store.EdgeType
type PromoteResult = store.PromoteResult

type KeyCollisionError = store.KeyCollisionError
type InvalidTransitionError = store.InvalidTransitionError
type QueryError = store.QueryError

type Change = diffgen.Change
type LineRange = diffgen.LineRange
type ValidationReport = preflight.Report
type ValidationResult = preflight.Result
type ValidationError = preflight.ValidationError

// Entity kinds.
const (
	KindFunction  = store.KindFunction
	KindMethod    = store.KindMethod
	KindStruct    = store.KindStruct
	KindEnum      = store.KindEnum
	KindTrait     = store.KindTrait
	KindModule    = store.KindModule
	KindImpl      = store.KindImpl
	KindTypeAlias = store.KindTypeAlias
	KindField     = store.KindField
	KindOther     = store.KindOther
)

// Pending actions.
const (
	ActionNone   = store.ActionNone
	ActionCreate = store.ActionCreate
	ActionEdit   = store.ActionEdit
	ActionDelete = store.ActionDelete
)

// Edge types.
const (
	EdgeDependsOn  = store.EdgeDependsOn
	EdgeContains   = store.EdgeContains
	EdgeImplements = store.EdgeImplements
)

// EntityKey derives the deterministic semantic key for an entity.
func EntityKey(language string, kind EntityKind, name, path string, startLine, endLine int) string {
	return store.EntityKey(language, kind, name, path, startLine, endLine)
}

// ParseKey splits a semantic key back into its components.
func ParseKey(key string) (*Entity, error) {
	return store.ParseKey(key)
}
