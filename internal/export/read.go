package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/lvs-console/internal/logparse"
)

// ReadFile loads a rule table previously written by WriteFile. Rows are
// merged by rule so the result is a valid aggregated table.
func ReadFile(path string) ([]logparse.RuleCount, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []logparse.RuleCount
	switch format {
	case FormatCSV:
		rows, err = readCSV(f)
	case FormatJSON:
		rows, err = readJSON(f)
	case FormatParquet:
		rows, err = readParquet(f)
	default:
		return nil, fmt.Errorf("%w: cannot read %s tables", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return logparse.Merge(rows), nil
}

func readCSV(r io.Reader) ([]logparse.RuleCount, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2 // rule, count

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if !strings.EqualFold(header[0], "rule") || !strings.EqualFold(header[1], "count") {
		return nil, fmt.Errorf("unexpected CSV header %q", header)
	}

	var rows []logparse.RuleCount
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		count, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("invalid count %q for rule %q", record[1], record[0])
		}
		rows = append(rows, logparse.RuleCount{Rule: strings.TrimSpace(record[0]), Count: count})
	}
}

func readJSON(r io.Reader) ([]logparse.RuleCount, error) {
	decoder := json.NewDecoder(r)

	var rows []logparse.RuleCount
	for {
		var record logparse.RuleCount
		err := decoder.Decode(&record)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON record: %w", err)
		}
		if strings.TrimSpace(record.Rule) == "" {
			return nil, fmt.Errorf("JSON record %d has no rule", len(rows)+1)
		}
		rows = append(rows, record)
	}
}

func readParquet(f *os.File) ([]logparse.RuleCount, error) {
	reader := parquet.NewReader(f)
	defer reader.Close()

	var rows []logparse.RuleCount
	for {
		var record logparse.RuleCount
		err := reader.Read(&record)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		rows = append(rows, record)
	}
}
