package strata

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/strata/internal/store"
)

// ingestParallel runs the two per-file passes on a worker pool:
//
//	Phase A (serial, done by caller): filtering, reading, hash checks.
//	Phase B (parallel): parse, extract, attribute. No shared mutable state;
//	  each worker builds an independent batch.
//	Phase C (serial): merge batches through the store's single write path,
//	  so key collisions are detected atomically per file.
func (e *Engine) ingestParallel(ctx context.Context, items []workItem, report *IngestReport) {
	if len(items) == 0 {
		return
	}

	type result struct {
		item  workItem
		batch *store.Batch
		diags []Diagnostic
		err   error
	}

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	resultCh := make(chan result, len(items))

	numWorkers := min(runtime.NumCPU(), len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			for item := range workCh {
				batch, diags, err := e.extractFile(gctx, item)
				resultCh <- result{item: item, batch: batch, diags: diags, err: err}
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(resultCh)
	}()

	// Single-writer commit loop: batch merges must not interleave.
	for res := range resultCh {
		if res.err != nil {
			e.recordFileError(report, res.item.normPath, res.err)
			continue
		}
		if err := e.store.MergeBatch(res.batch); err != nil {
			e.recordFileError(report, res.item.normPath, err)
			continue
		}
		report.Ingested++
		report.Diagnostics = append(report.Diagnostics, res.diags...)
	}
}
