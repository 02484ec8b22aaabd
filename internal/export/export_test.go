package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/lvs-console/internal/logparse"
)

var sample = []logparse.RuleCount{
	{Rule: "Open Circuit", Count: 4},
	{Rule: `Net "VDD" mismatch, pin A`, Count: 2},
	{Rule: "Well Shorts", Count: 0},
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"rules.csv":      FormatCSV,
		"RULES.JSON":     FormatJSON,
		"out.ndjson":     FormatJSON,
		"out.parquet":    FormatParquet,
		"summary.table":  FormatTable,
		"dir.v2/out.csv": FormatCSV,
	}
	for path, want := range tests {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := DetectFormat("report.txt")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Parquet ")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"rules.csv", "rules.jsonl", "rules.parquet"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteFile(path, sample))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.ElementsMatch(t, sample, got)
		})
	}
}

func TestWriteCSVQuotesRules(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sample[:2]))

	assert.Equal(t, "rule,count\nOpen Circuit,4\n\"Net \"\"VDD\"\" mismatch, pin A\",2\n", buf.String())
}

func TestWriteTableIncludesTotal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, sample))

	out := buf.String()
	assert.Contains(t, out, "Open Circuit")
	assert.Regexp(t, `6\s+TOTAL`, out)
}

func TestWriteTableWithTotal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, sample[:1], WithTotal(6)))

	assert.Regexp(t, `4\s+Open Circuit`, buf.String())
	assert.Regexp(t, `6\s+TOTAL`, buf.String())
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	badHeader := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(badHeader, []byte("name,n\nx,1\n"), 0o644))
	_, err := ReadFile(badHeader)
	assert.Error(t, err)

	badCount := filepath.Join(dir, "count.csv")
	require.NoError(t, os.WriteFile(badCount, []byte("rule,count\nx,-1\n"), 0o644))
	_, err = ReadFile(badCount)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "table.table"))
	assert.Error(t, err)
}

func TestReadJSONRejectsReportDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lvs_report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rules":[{"explanation":"Open Circuit","total_violations":2}]}`), 0o644))

	_, err := ReadFile(path)
	assert.Error(t, err)
}
