package store

import "time"

// EntityKind is the fixed taxonomy of extractable code constructs.
type EntityKind string

const (
	KindFunction  EntityKind = "function"
	KindMethod    EntityKind = "method"
	KindStruct    EntityKind = "struct"
	KindEnum      EntityKind = "enum"
	KindTrait     EntityKind = "trait"
	KindModule    EntityKind = "module"
	KindImpl      EntityKind = "impl"
	KindTypeAlias EntityKind = "typealias"
	KindField     EntityKind = "field"
	KindOther     EntityKind = "other"
)

// kindSpecificity is a total order over entity kinds, smallest = most
// specific. It drives both overlapping-rule deduplication (the more
// specific rule wins a contested span) and the attribution tie-break
// (a call inside a method nested in an impl block belongs to the method).
var kindSpecificity = map[EntityKind]int{
	KindMethod:    0,
	KindFunction:  1,
	KindField:     2,
	KindEnum:      3,
	KindTrait:     4,
	KindStruct:    5,
	KindImpl:      6,
	KindTypeAlias: 7,
	KindModule:    8,
	KindOther:     9,
}

// Specificity returns the rank of k in the kind specificity order.
// Unknown kinds rank last.
func Specificity(k EntityKind) int {
	if r, ok := kindSpecificity[k]; ok {
		return r
	}
	return len(kindSpecificity)
}

// FutureAction is the pending transition proposed for an entity.
type FutureAction string

const (
	ActionNone   FutureAction = "none"
	ActionCreate FutureAction = "create"
	ActionEdit   FutureAction = "edit"
	ActionDelete FutureAction = "delete"
)

// EdgeType classifies a directed dependency.
type EdgeType string

const (
	EdgeDependsOn  EdgeType = "depends_on"
	EdgeContains   EdgeType = "contains"
	EdgeImplements EdgeType = "implements"
)

// Entity is a named, spanned unit of code with temporal state. Key is the
// deterministic semantic identity (language:kind:name:path:start-end);
// re-ingesting unchanged source reproduces the identical key.
type Entity struct {
	Key       string
	Language  string
	Kind      EntityKind
	Name      string
	Path      string // normalized, forward slashes
	StartLine int    // 1-based, inclusive
	EndLine   int    // 1-based, inclusive
	Signature string

	CurrentCode  string
	FutureCode   string
	CurrentInd   bool
	FutureInd    bool
	FutureAction FutureAction
}

// Span returns the line span width of the entity.
func (e *Entity) Span() int { return e.EndLine - e.StartLine }

// Pending reports whether the entity has a proposed-but-unapplied change.
func (e *Entity) Pending() bool { return e.FutureAction != ActionNone }

// Edge is a directed dependency between two entity keys. ToKey may be an
// external placeholder (language:kind:name:external:0) when the target is
// outside the ingestion scope; edges are never dropped for lack of a
// resolved target.
type Edge struct {
	ID      int64
	FromKey string
	ToKey   string
	Type    EdgeType
}

// File is the ingestion bookkeeping record for one source file.
type File struct {
	Path         string // normalized
	Language     string
	Hash         string
	LineCount    int
	LastIngested time.Time
}

// Diagnostic is a recoverable per-file finding surfaced alongside a
// successful ingestion, e.g. an attribution ambiguity that fell back to
// the file-level module entity.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// DiagAttributionAmbiguity marks a reference whose containment set was
// empty; the edge was attributed to the file-level module entity.
const DiagAttributionAmbiguity = "attribution_ambiguity"

// Batch is the extraction output for one file, merged atomically.
type Batch struct {
	File     File
	Entities []Entity
	Edges    []Edge
}
