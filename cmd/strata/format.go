package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jward/strata"
)

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputEntities(w io.Writer, entities []*strata.Entity) error {
	if flagFormat == "json" {
		out := make([]cliEntity, 0, len(entities))
		for _, e := range entities {
			out = append(out, toCLIEntity(e))
		}
		return outputJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tPATH\tLINES\tSTATE")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%s\n",
			e.Kind, e.Name, e.Path, e.StartLine, e.EndLine, stateOf(e))
	}
	return tw.Flush()
}

// stateOf renders the temporal state machine position for text output.
func stateOf(e *strata.Entity) string {
	switch e.FutureAction {
	case strata.ActionCreate:
		return "pending-create"
	case strata.ActionEdit:
		return "pending-edit"
	case strata.ActionDelete:
		return "pending-delete"
	default:
		return "unchanged"
	}
}

func outputEdges(w io.Writer, edges []*strata.Edge) error {
	if flagFormat == "json" {
		out := make([]cliEdge, 0, len(edges))
		for _, e := range edges {
			out = append(out, toCLIEdge(e))
		}
		return outputJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTYPE\tTO")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.FromKey, e.Type, e.ToKey)
	}
	return tw.Flush()
}

func outputChanges(w io.Writer, changes []strata.Change) error {
	if flagFormat == "json" {
		return outputJSON(w, changes)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tKEY\tFILE\tLINES")
	for _, c := range changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\n",
			c.Operation, c.Key, c.FilePath, c.LineRange.Start, c.LineRange.End)
	}
	return tw.Flush()
}

func outputValidation(w io.Writer, report *strata.ValidationReport) error {
	if flagFormat == "json" {
		return outputJSON(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tRESULT\tDETAIL")
	for _, r := range report.Results {
		detail := ""
		if r.Err != nil {
			detail = fmt.Sprintf("%s at offset %d", r.Err.Message, r.Err.Offset)
		}
		result := "ok"
		if !r.OK {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Key, result, detail)
	}
	return tw.Flush()
}

type cliIngestReport struct {
	BatchID       string              `json:"batch_id"`
	Ingested      int                 `json:"ingested"`
	Skipped       int                 `json:"skipped"`
	EdgesResolved int                 `json:"edges_resolved"`
	DurationMS    int64               `json:"duration_ms"`
	Errors        []cliIngestError    `json:"errors,omitempty"`
	Diagnostics   []strata.Diagnostic `json:"diagnostics,omitempty"`
}

type cliIngestError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func outputIngestReport(w io.Writer, report *strata.IngestReport, elapsed time.Duration) error {
	if flagFormat == "json" {
		out := cliIngestReport{
			BatchID:       report.BatchID,
			Ingested:      report.Ingested,
			Skipped:       report.Skipped,
			EdgesResolved: report.EdgesResolved,
			DurationMS:    elapsed.Milliseconds(),
			Diagnostics:   report.Diagnostics,
		}
		for _, fe := range report.Errors {
			out.Errors = append(out.Errors, cliIngestError{Path: fe.Path, Error: fe.Err.Error()})
		}
		return outputJSON(w, out)
	}

	fmt.Fprintf(w, "ingested %d file(s), skipped %d, resolved %d edge(s) in %s\n",
		report.Ingested, report.Skipped, report.EdgesResolved, elapsed.Round(time.Millisecond))
	for _, fe := range report.Errors {
		fmt.Fprintf(w, "  error %s: %s\n", fe.Path, fe.Err)
	}
	for _, d := range report.Diagnostics {
		fmt.Fprintf(w, "  diagnostic %s %s:%d %s\n", d.Kind, d.Path, d.Line, d.Message)
	}
	return nil
}
