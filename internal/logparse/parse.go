package logparse

import (
	"sort"
	"strings"
)

// Strategies is the ordered tier list tried by Parse. Earlier tiers recover
// more structure; later ones only run when every earlier tier came up empty.
var Strategies = []Strategy{
	{Name: StrategyRulesDocument, Parse: ParseRulesDocument},
	{Name: StrategyLineJSON, Parse: ParseLineJSON},
	{Name: StrategyDelimited, Parse: ParseDelimited},
	{Name: StrategyBagOfWords, Parse: ParseBagOfWords},
}

// Parse converts an arbitrary violation log into rule/count rows sorted by
// count descending. Ties keep the order in which rules were first seen.
func Parse(text string) []RuleCount {
	return ParseWithStrategy(text).Rows
}

// ParseWithStrategy is Parse that also reports the tier which matched
func ParseWithStrategy(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Strategy: StrategyNone, Rows: []RuleCount{}}
	}

	for _, s := range Strategies {
		if rows := runStrategy(s, text); len(rows) > 0 {
			return Result{Strategy: s.Name, Rows: rows}
		}
	}

	return Result{Strategy: StrategyNone, Rows: []RuleCount{}}
}

// runStrategy isolates a tier so that a panic inside it only means the tier
// produced nothing.
func runStrategy(s Strategy, text string) (rows []RuleCount) {
	defer func() {
		if recover() != nil {
			rows = nil
		}
	}()
	return s.Parse(text)
}

// tally accumulates counts per rule while remembering first-seen order
type tally struct {
	index map[string]int
	rows  []RuleCount
}

func newTally() *tally {
	return &tally{index: make(map[string]int)}
}

func (t *tally) add(rule string, count int) {
	if i, ok := t.index[rule]; ok {
		t.rows[i].Count += count
		return
	}
	t.index[rule] = len(t.rows)
	t.rows = append(t.rows, RuleCount{Rule: rule, Count: count})
}

func (t *tally) len() int {
	return len(t.rows)
}

// sorted returns the rows ordered by count descending, stable on first-seen order
func (t *tally) sorted() []RuleCount {
	out := make([]RuleCount, len(t.rows))
	copy(out, t.rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// splitLines splits on \n and \r\n
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
