package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/strata"
)

var (
	flagCodeFile   string
	flagOverride   bool
	flagProposeDir string
)

var proposeCmd = &cobra.Command{
	Use:   "propose <create|edit|delete> <key>",
	Short: "Record a pending change for an entity",
	Long: `Records a pending Create, Edit, or Delete against an entity key.
Create and Edit read the proposed code from --code-file (or stdin when
"-"). Proposing on an entity that is already pending fails unless
--override is set.`,
	Args: cobra.ExactArgs(2),
	RunE: runPropose,
}

func init() {
	proposeCmd.Flags().StringVar(&flagCodeFile, "code-file", "", "file holding the proposed code, or - for stdin")
	proposeCmd.Flags().BoolVar(&flagOverride, "override", false, "replace an existing pending change")
	proposeCmd.Flags().StringVar(&flagProposeDir, "dir", ".", "target directory holding the graph")
}

func runPropose(cmd *cobra.Command, args []string) error {
	var action strata.FutureAction
	switch args[0] {
	case "create":
		action = strata.ActionCreate
	case "edit":
		action = strata.ActionEdit
	case "delete":
		action = strata.ActionDelete
	default:
		return fmt.Errorf("unknown action %q (want create, edit, or delete)", args[0])
	}
	key := args[1]

	var code string
	if action != strata.ActionDelete {
		if flagCodeFile == "" {
			return fmt.Errorf("%s requires --code-file", args[0])
		}
		var data []byte
		var err error
		if flagCodeFile == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(flagCodeFile)
		}
		if err != nil {
			return fmt.Errorf("read proposed code: %w", err)
		}
		code = string(data)
	}

	engine, err := openEngine([]string{flagProposeDir})
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Propose(key, action, code, flagOverride); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "proposed %s on %s\n", args[0], key)
	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Re-parse all pending code snippets",
	Long:  "Runs preflight validation: every pending Create/Edit snippet is re-parsed with the ingestion grammar. Failures are reported per entity and never block validation of the others.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(args)
		if err != nil {
			return err
		}
		defer engine.Close()

		report, err := engine.Validate(cmd.Context())
		if err != nil {
			return err
		}
		if err := outputValidation(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if report.Failed() > 0 {
			return fmt.Errorf("%d pending snippet(s) failed validation", report.Failed())
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff [path]",
	Short: "Emit the ordered pending change set",
	Long:  "Scans all pending entities in ascending key order and prints one change record per entity. Pure read: running it twice on unchanged state yields identical output.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(args)
		if err != nil {
			return err
		}
		defer engine.Close()

		changes, err := engine.Diff()
		if err != nil {
			return err
		}
		return outputChanges(cmd.OutOrStdout(), changes)
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote [path]",
	Short: "Commit all pending changes into current state",
	Long:  "Moves every pending entity to Unchanged in one transaction: creates and edits overwrite current state from future state, deletes remove the entity and its edges.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(args)
		if err != nil {
			return err
		}
		defer engine.Close()

		res, err := engine.PromoteAll()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "promoted: %d created, %d edited, %d deleted\n",
			res.Created, res.Edited, res.Deleted)
		return nil
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert <key>",
	Short: "Discard the pending change on an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := engine.Revert(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", args[0])
		return nil
	},
}
