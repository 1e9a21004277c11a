package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/strata"
)

var (
	flagEdges    bool
	flagQueryDir string
)

var queryCmd = &cobra.Command{
	Use:   "query [predicate]",
	Short: "Query entities or edges with a predicate filter",
	Long: `Filters graph records with a small predicate language:

  field = value     equality
  field != value    inequality
  field ~ pattern   substring match

Comma-separated comparisons must all hold; semicolon-separated groups are
alternatives. Entity fields: key, language, kind, name, path, start_line,
end_line, signature, current_code, future_code, current_ind, future_ind,
future_action. Edge fields: from_key, to_key, edge_type.

Examples:
  strata query 'kind = function, path ~ internal/'
  strata query --edges 'edge_type = depends_on'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&flagEdges, "edges", false, "query edges instead of entities")
	queryCmd.Flags().StringVar(&flagQueryDir, "dir", ".", "target directory holding the graph")
}

func runQuery(cmd *cobra.Command, args []string) error {
	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}

	engine, err := openEngine([]string{flagQueryDir})
	if err != nil {
		return err
	}
	defer engine.Close()

	out := cmd.OutOrStdout()
	if flagEdges {
		edges, err := engine.Edges(filter)
		if err != nil {
			return err
		}
		return outputEdges(out, edges)
	}

	entities, err := engine.Entities(filter)
	if err != nil {
		return err
	}
	return outputEntities(out, entities)
}

// cliEntity is the JSON projection of an entity for CLI output.
type cliEntity struct {
	Key          string `json:"key"`
	Language     string `json:"language"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Signature    string `json:"signature"`
	CurrentInd   bool   `json:"current_ind"`
	FutureInd    bool   `json:"future_ind"`
	FutureAction string `json:"future_action"`
}

func toCLIEntity(e *strata.Entity) cliEntity {
	return cliEntity{
		Key:          e.Key,
		Language:     e.Language,
		Kind:         string(e.Kind),
		Name:         e.Name,
		Path:         e.Path,
		StartLine:    e.StartLine,
		EndLine:      e.EndLine,
		Signature:    e.Signature,
		CurrentInd:   e.CurrentInd,
		FutureInd:    e.FutureInd,
		FutureAction: string(e.FutureAction),
	}
}

// cliEdge is the JSON projection of an edge for CLI output.
type cliEdge struct {
	FromKey  string `json:"from_key"`
	ToKey    string `json:"to_key"`
	EdgeType string `json:"edge_type"`
}

func toCLIEdge(e *strata.Edge) cliEdge {
	return cliEdge{FromKey: e.FromKey, ToKey: e.ToKey, EdgeType: string(e.Type)}
}
