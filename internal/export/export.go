// Package export writes and reads aggregated rule tables as CSV, JSON lines,
// Parquet or a plain text table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/lvs-console/internal/logparse"
)

// Format is an output encoding for a rule table
type Format string

const (
	FormatTable   Format = "table"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ErrUnknownFormat is returned for a format name or file extension that is
// not a rule table encoding.
var ErrUnknownFormat = errors.New("unknown table format")

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// DetectFormat picks a format from a file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".tsv", ".table":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// WriteOption adjusts how a table is written
type WriteOption func(*writeOptions)

type writeOptions struct {
	total    int
	hasTotal bool
}

// WithTotal sets the TOTAL row of the table format. Pass the total of the
// unfiltered rows when writing a filtered view; by default it is the sum of
// the rows written.
func WithTotal(n int) WriteOption {
	return func(o *writeOptions) {
		o.total = n
		o.hasTotal = true
	}
}

// Write encodes rows to w
func Write(w io.Writer, format Format, rows []logparse.RuleCount, opts ...WriteOption) error {
	o := writeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hasTotal {
		o.total = logparse.Total(rows)
	}

	switch format {
	case FormatTable:
		return writeTable(w, rows, o.total)
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		return writeJSON(w, rows)
	case FormatParquet:
		return writeParquet(w, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteFile writes rows to path in the format its extension names
func WriteFile(path string, rows []logparse.RuleCount, opts ...WriteOption) (err error) {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	return Write(f, format, rows, opts...)
}

func writeTable(w io.Writer, rows []logparse.RuleCount, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "COUNT\tRULE\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t\n", r.Count, r.Rule)
	}
	fmt.Fprintf(tw, "%d\t%s\t\n", total, "TOTAL")
	return tw.Flush()
}

func writeCSV(w io.Writer, rows []logparse.RuleCount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rule", "count"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Rule, strconv.Itoa(r.Count)}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeJSON writes one object per line
func writeJSON(w io.Writer, rows []logparse.RuleCount) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}
	return nil
}

func writeParquet(w io.Writer, rows []logparse.RuleCount) error {
	pw := parquet.NewGenericWriter[logparse.RuleCount](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("failed to write Parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}
