// Package diffgen computes the pending change set from temporal state.
// The Change record schema and the create/edit/delete vocabulary are a
// stable wire format consumed by automated editors.
package diffgen

import (
	"encoding/json"
	"fmt"

	"github.com/jward/strata/internal/store"
)

// LineRange is an inclusive 1-based span.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Change is one pending operation on an entity. CurrentCode is omitted for
// creates, FutureCode for deletes.
type Change struct {
	Key         string    `json:"key"`
	Operation   string    `json:"operation"`
	FilePath    string    `json:"file_path"`
	LineRange   LineRange `json:"line_range"`
	CurrentCode string    `json:"current_code,omitempty"`
	FutureCode  string    `json:"future_code,omitempty"`
}

// Changes scans all pending entities in ascending key order and emits one
// change record per entity. Pure function of store state: no side effects,
// and running it twice on unchanged state yields byte-identical output.
func Changes(s *store.Store) ([]Change, error) {
	pending, err := s.PendingEntities()
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	changes := make([]Change, 0, len(pending))
	for _, e := range pending {
		c := Change{
			Key:       e.Key,
			Operation: string(e.FutureAction),
			FilePath:  e.Path,
			LineRange: LineRange{Start: e.StartLine, End: e.EndLine},
		}
		switch e.FutureAction {
		case store.ActionCreate:
			c.FutureCode = e.FutureCode
		case store.ActionDelete:
			c.CurrentCode = e.CurrentCode
		default:
			c.CurrentCode = e.CurrentCode
			c.FutureCode = e.FutureCode
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// Marshal renders a change set as indented JSON, the boundary contract an
// automated editor or LLM consumes.
func Marshal(changes []Change) ([]byte, error) {
	out, err := json.MarshalIndent(changes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("diff: marshal: %w", err)
	}
	return out, nil
}
