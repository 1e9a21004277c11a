// Package preflight re-parses proposed future code before it may be
// diffed. The check is syntax-only: type correctness, import resolution,
// and cross-entity consistency belong to the language's own build
// pipeline, invoked externally after changes are applied.
package preflight

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jward/strata/internal/lang"
	"github.com/jward/strata/internal/store"
)

// ValidationError is a structured syntax error in a proposed snippet.
// Offset is the byte offset within the snippet, not the original file.
type ValidationError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Offset  int    `json:"offset"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s at offset %d", e.Key, e.Message, e.Offset)
}

// Result is the validation outcome for one entity.
type Result struct {
	Key string           `json:"key"`
	OK  bool             `json:"ok"`
	Err *ValidationError `json:"error,omitempty"`
}

// Report aggregates per-entity results, sorted by key regardless of
// completion order.
type Report struct {
	Results []Result `json:"results"`
}

// Failed returns the number of entities that failed validation.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK {
			n++
		}
	}
	return n
}

// Validate checks every entity with a pending Create or Edit by re-parsing
// its future code with the same grammar adapter used at ingestion.
// Entities validate independently and in parallel; one failure never stops
// the others.
func Validate(ctx context.Context, entities []*store.Entity) *Report {
	var pending []*store.Entity
	for _, e := range entities {
		if e.FutureAction == store.ActionCreate || e.FutureAction == store.ActionEdit {
			pending = append(pending, e)
		}
	}

	// Each worker writes its own slot, so per-entity identity survives any
	// completion order.
	results := make([]Result, len(pending))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, e := range pending {
		i, e := i, e
		g.Go(func() error {
			results[i] = validateOne(ctx, e)
			return nil
		})
	}
	g.Wait() // workers never return errors; failures land in results

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return &Report{Results: results}
}

func validateOne(ctx context.Context, e *store.Entity) Result {
	perr := lang.CheckSyntax(ctx, []byte(e.FutureCode), e.Language)
	if perr == nil {
		return Result{Key: e.Key, OK: true}
	}
	return Result{
		Key: e.Key,
		Err: &ValidationError{
			Key:     e.Key,
			Message: perr.Message,
			Offset:  perr.Offset,
			Line:    perr.Line,
			Col:     perr.Col,
		},
	}
}
