package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/lvs-console/internal/export"
	"github.com/raaihank/lvs-console/internal/logparse"
)

var (
	rulesFilter string
	rulesFormat string
	rulesOut    string
)

var rulesCmd = &cobra.Command{
	Use:   "rules FILE...",
	Short: "Aggregate violation counts per rule",
	Long: `Reads LVS violation logs in any supported shape (report JSON, NDJSON,
delimited "rule,count" lines or free text) and previously exported rule
tables (.csv, .json, .parquet), then prints one merged table.`,
	Example: `  lvsreport rules lvs_report.txt
  lvsreport rules run1.log run2.log --filter short --format csv
  lvsreport rules nightly/*.txt --out summary.parquet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().StringVarP(&rulesFilter, "filter", "f", "", "Only show rules containing this text (case-insensitive)")
	rulesCmd.Flags().StringVar(&rulesFormat, "format", "", "Output format: table, csv, json or parquet (default table, or from --out)")
	rulesCmd.Flags().StringVarP(&rulesOut, "out", "o", "", "Write to this file instead of stdout")
}

func runRules(cmd *cobra.Command, args []string) error {
	start := time.Now()

	tables := make([][]logparse.RuleCount, len(args))
	var g errgroup.Group
	g.SetLimit(8)
	for i, path := range args {
		g.Go(func() error {
			rows, err := loadRules(path)
			if err != nil {
				return err
			}
			tables[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	merged := logparse.Merge(tables...)
	total := logparse.Total(merged)
	rows := logparse.Filter(merged, rulesFilter)
	log.Debug("Rules aggregated",
		zap.Int("inputs", len(args)),
		zap.Int("rules", len(merged)),
		zap.Int("shown", len(rows)),
		zap.Int("violations", total),
		zap.Duration("duration", time.Since(start)))

	return writeRules(cmd.OutOrStdout(), rows, export.WithTotal(total))
}

// loadRules reads an exported table when path has a table extension and
// parses it as a violation log otherwise.
func loadRules(path string) ([]logparse.RuleCount, error) {
	if format, err := export.DetectFormat(path); err == nil && format != export.FormatTable {
		rows, err := export.ReadFile(path)
		if err == nil {
			log.Debug("Read rule table", zap.String("file", path), zap.String("format", string(format)))
			return rows, nil
		}
		// a .json file may be a raw report rather than an export
		if format != export.FormatJSON {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	res := logparse.ParseWithStrategy(string(data))
	log.Debug("Parsed violation log",
		zap.String("file", path),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("rules", len(res.Rows)))
	return res.Rows, nil
}

func writeRules(stdout io.Writer, rows []logparse.RuleCount, opts ...export.WriteOption) error {
	var format export.Format
	if rulesFormat != "" {
		f, err := export.ParseFormat(rulesFormat)
		if err != nil {
			return err
		}
		format = f
	}

	if rulesOut == "" {
		if format == "" {
			format = export.FormatTable
		}
		if format == export.FormatParquet {
			return errors.New("parquet output needs --out")
		}
		return export.Write(stdout, format, rows, opts...)
	}

	if format == "" {
		return export.WriteFile(rulesOut, rows, opts...)
	}

	f, err := os.Create(rulesOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", rulesOut, err)
	}
	if err := export.Write(f, format, rows, opts...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
