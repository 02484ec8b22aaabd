package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/lvs-console/internal/export"
	"github.com/raaihank/lvs-console/internal/hierarchy"
	"github.com/raaihank/lvs-console/internal/logparse"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rulesFilter, rulesFormat, rulesOut = "", "", ""
	diffCanonical, diffSupplied, diffUnified, diffContext = "", "", false, 3

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRulesMergesLogsAndTables(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "lvs_report.json", `{"rules":[{"explanation":"Open Circuit","total_violations":2},{"explanation":"Short Circuit","total_violations":1}]}`)
	delimited := writeFile(t, dir, "run.txt", "Open Circuit,3\nWell Shorts;4\n")
	table := filepath.Join(dir, "prev.csv")
	require.NoError(t, export.WriteFile(table, []logparse.RuleCount{{Rule: "Short Circuit", Count: 5}}))

	out, err := execute(t, "rules", report, delimited, table, "--format", "json")
	require.NoError(t, err)

	var rows []logparse.RuleCount
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for dec.More() {
		var rc logparse.RuleCount
		require.NoError(t, dec.Decode(&rc))
		rows = append(rows, rc)
	}
	assert.ElementsMatch(t, []logparse.RuleCount{
		{Rule: "Short Circuit", Count: 6},
		{Rule: "Open Circuit", Count: 5},
		{Rule: "Well Shorts", Count: 4},
	}, rows)
}

func TestRulesFilterAndOutFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "run.txt", "Open Circuit,3\nShort Circuit,1\n")
	dst := filepath.Join(dir, "summary.parquet")

	_, err := execute(t, "rules", src, "--filter", "SHORT", "--out", dst)
	require.NoError(t, err)

	rows, err := export.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []logparse.RuleCount{{Rule: "Short Circuit", Count: 1}}, rows)
}

func TestRulesFilterKeepsUnfilteredTotal(t *testing.T) {
	src := writeFile(t, t.TempDir(), "run.txt", "Open Circuit,3\nShort Circuit,1\n")

	out, err := execute(t, "rules", src, "--filter", "short")
	require.NoError(t, err)

	assert.Regexp(t, `1\s+Short Circuit`, out)
	assert.NotContains(t, out, "Open Circuit")
	assert.Regexp(t, `4\s+TOTAL`, out)
}

func TestRulesRejectsParquetOnStdout(t *testing.T) {
	src := writeFile(t, t.TempDir(), "run.txt", "Open Circuit,3\n")

	_, err := execute(t, "rules", src, "--format", "parquet")
	assert.Error(t, err)

	_, err = execute(t, "rules", src, "--format", "xml")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	canonical := writeFile(t, dir, "layout.txt", "TOP\ninv\nnand2\n")
	supplied := writeFile(t, dir, "cells.txt", "inv # keep\nghost\n\n")

	out, err := execute(t, "diff", "--canonical", canonical, "--supplied", supplied)
	require.NoError(t, err)

	var res hierarchy.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"ghost"}, res.Absent)
	assert.Equal(t, 4, res.Total)

	out, err = execute(t, "diff", "--canonical", canonical, "--supplied", supplied, "--unified")
	require.NoError(t, err)
	assert.Contains(t, out, "Total cells not present in layout: 1")
	assert.Contains(t, out, "+ghost")
}
