package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raaihank/lvs-console/internal/hierarchy"
)

var (
	diffCanonical string
	diffSupplied  string
	diffUnified   bool
	diffContext   int
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare a layout cell list with a supplied cell list",
	Long: `Both inputs are plain name lists: one cell per line, "#" comments and
blank lines ignored. Prints which supplied cells are missing from the
layout as JSON, or a summary plus unified diff with --unified.`,
	Example: `  lvsreport diff --canonical layout_cells.txt --supplied cells.txt
  lvsreport diff --canonical layout_cells.txt --supplied cells.txt --unified`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVar(&diffCanonical, "canonical", "", "Cell names present in the layout")
	diffCmd.Flags().StringVar(&diffSupplied, "supplied", "", "Cell names to check")
	diffCmd.Flags().BoolVarP(&diffUnified, "unified", "u", false, "Print a summary and unified diff instead of JSON")
	diffCmd.Flags().IntVarP(&diffContext, "context", "C", 3, "Lines of context in the unified diff")
	_ = diffCmd.MarkFlagRequired("canonical")
	_ = diffCmd.MarkFlagRequired("supplied")
}

func runDiff(cmd *cobra.Command, args []string) error {
	canonical, err := readNames(diffCanonical)
	if err != nil {
		return err
	}
	supplied, err := readNames(diffSupplied)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if diffUnified {
		_, err := fmt.Fprint(out, hierarchy.UnifiedReport(canonical, supplied, hierarchy.ReportOptions{
			Context:    diffContext,
			LayoutName: diffCanonical,
			ListName:   diffSupplied,
		}))
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(hierarchy.Diff(canonical, supplied))
}

func readNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hierarchy.ParseNameList(string(data)), nil
}
