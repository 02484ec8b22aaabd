package logparse

import (
	"strconv"
	"strings"
)

// Filter returns the rows whose rule contains q, case-insensitively. The
// input slice is never modified; an empty query returns a copy of all rows.
func Filter(rows []RuleCount, q string) []RuleCount {
	out := make([]RuleCount, 0, len(rows))
	qq := strings.ToLower(q)
	for _, r := range rows {
		if qq == "" || strings.Contains(strings.ToLower(r.Rule), qq) {
			out = append(out, r)
		}
	}
	return out
}

// Total sums the counts of rows. Callers pass the unfiltered set.
func Total(rows []RuleCount) int {
	total := 0
	for _, r := range rows {
		total += r.Count
	}
	return total
}

// Merge folds several parsed tables into one, summing counts per rule and
// re-sorting. Used when aggregating more than one log file.
func Merge(tables ...[]RuleCount) []RuleCount {
	t := newTally()
	for _, rows := range tables {
		for _, r := range rows {
			t.add(r.Rule, r.Count)
		}
	}
	if t.len() == 0 {
		return []RuleCount{}
	}
	return t.sorted()
}

// FormatDelimited renders rows as "rule,count" lines, the shape ParseDelimited reads.
func FormatDelimited(rows []RuleCount) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(r.Rule)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(r.Count))
		b.WriteByte('\n')
	}
	return b.String()
}
