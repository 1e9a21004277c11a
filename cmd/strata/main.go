package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/strata"
)

var (
	flagDB     string
	flagFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "strata",
	Short:         "Temporal code graph: ingest, propose, validate, diff, promote",
	Long:          "Strata indexes source code with tree-sitter into a SQLite entity/dependency graph and layers a temporal model on top so proposed edits can be validated and diffed before they touch source files.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .strata/graph.db under the target directory)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(revertCmd)
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid format %q (want json or text)", format)
	}
}

var (
	flagLanguages string
	flagSerial    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a directory into the temporal graph",
	Long:  "Parses source files with tree-sitter, extracts entities and dependency edges, and merges them into the SQLite graph. Unchanged files are skipped; per-file failures do not stop the run.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,rust)")
	ingestCmd.Flags().BoolVar(&flagSerial, "serial", false, "disable the parallel extraction pipeline")
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(targetDir)
	if err != nil {
		return err
	}

	dbPath := resolveDBPath(targetDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	opts := []strata.Option{
		strata.WithRoot(targetDir),
		strata.WithParallel(!flagSerial),
	}
	if langs := splitList(flagLanguages); len(langs) > 0 {
		opts = append(opts, strata.WithLanguages(langs...))
	} else if len(cfg.Languages) > 0 {
		opts = append(opts, strata.WithLanguages(cfg.Languages...))
	}
	if len(cfg.Exclude) > 0 {
		opts = append(opts, strata.WithExcludes(cfg.Exclude...))
	}

	engine, err := strata.New(dbPath, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.IngestDirectory(cmd.Context(), targetDir)
	if err != nil {
		return err
	}

	return outputIngestReport(cmd.OutOrStdout(), report, time.Since(start))
}

// resolveTargetDir picks the positional directory argument or the cwd.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// resolveDBPath honors --db, otherwise .strata/graph.db under the target.
func resolveDBPath(targetDir string) string {
	if flagDB != "" {
		return flagDB
	}
	return filepath.Join(targetDir, ".strata", "graph.db")
}

// openEngine opens the graph for commands that operate on an existing DB.
func openEngine(args []string) (*strata.Engine, error) {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(targetDir)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no graph at %s; run `strata ingest` first", dbPath)
	}
	return strata.New(dbPath, strata.WithRoot(targetDir))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
