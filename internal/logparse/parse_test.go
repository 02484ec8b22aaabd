package logparse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRulesDocument(t *testing.T) {
	t.Run("sums total_violations and violations length", func(t *testing.T) {
		in := `{ "rules": [{ "explanation": "A", "total_violations": 3 }, { "explanation": "A", "violations": [1,2] }] }`
		assert.Equal(t, []RuleCount{{Rule: "A", Count: 5}}, Parse(in))
	})

	t.Run("explanation preferred over rule and message", func(t *testing.T) {
		in := `{"rules": [
			{"explanation": "Short Circuit", "rule": "R2", "total_violations": 1},
			{"rule": "Open Circuit", "message": "ignored", "violations": [{}, {}, {}]},
			{"message": "Well Shorts"},
			{"explanation": "   ", "total_violations": 9}
		]}`
		got := Parse(in)
		assert.Equal(t, []RuleCount{
			{Rule: "Open Circuit", Count: 3},
			{Rule: "Short Circuit", Count: 1},
			{Rule: "Well Shorts", Count: 0},
		}, got)
	})

	t.Run("non-string rule text is stringified", func(t *testing.T) {
		in := `{"rules": [{"rule": 42, "total_violations": "4"}]}`
		assert.Equal(t, []RuleCount{{Rule: "42", Count: 4}}, ParseRulesDocument(in))
	})

	t.Run("empty rules array yields nothing at this tier", func(t *testing.T) {
		assert.Empty(t, ParseRulesDocument(`{"rules": []}`))
	})

	t.Run("not a rules document", func(t *testing.T) {
		assert.Empty(t, ParseRulesDocument(`[{"explanation": "x"}]`))
		assert.Empty(t, ParseRulesDocument(`{"rules": "nope"}`))
		assert.Empty(t, ParseRulesDocument(`{"rules": [`))
	})
}

func TestParseLineJSON(t *testing.T) {
	t.Run("ndjson lines count once each", func(t *testing.T) {
		in := "{\"explanation\":\"Open Circuit\",\"net\":\"n1\"}\n" +
			"{\"message\":\"Short\"}\r\n" +
			"\n" +
			"{\"explanation\":\"Open Circuit\"}\n"
		res := ParseWithStrategy(in)
		assert.Equal(t, StrategyLineJSON, res.Strategy)
		assert.Equal(t, []RuleCount{
			{Rule: "Open Circuit", Count: 2},
			{Rule: "Short", Count: 1},
		}, res.Rows)
	})

	t.Run("pretty printed json falls back to key extraction", func(t *testing.T) {
		in := `[
  {
    "explanation": "Open circuit on net",
    "layer": 12
  },
  {
    "explanation": "Open circuit on net",
    "layer": 13
  }
]`
		assert.Equal(t, []RuleCount{{Rule: "Open circuit on net", Count: 2}}, Parse(in))
	})

	t.Run("escaped quotes and newlines are unescaped", func(t *testing.T) {
		in := `  "explanation": "Net mismatch on \"VDD\"",` + "\n" +
			`explanation: 'Device\nsize'` + "\n" +
			"unrelated line\n"
		assert.Equal(t, []RuleCount{
			{Rule: `Net mismatch on "VDD"`, Count: 1},
			{Rule: "Device size", Count: 1},
		}, ParseLineJSON(in))
	})

	t.Run("non-string explanation is not a match", func(t *testing.T) {
		assert.Empty(t, ParseLineJSON(`{"explanation": 7}`))
	})
}

func TestParseDelimited(t *testing.T) {
	t.Run("colon pairs", func(t *testing.T) {
		res := ParseWithStrategy("foo: 3\nbar: 7\nfoo: 2")
		assert.Equal(t, StrategyDelimited, res.Strategy)
		assert.Equal(t, []RuleCount{{Rule: "bar", Count: 7}, {Rule: "foo", Count: 5}}, res.Rows)
	})

	t.Run("all separators and quotes", func(t *testing.T) {
		in := "\"Port Check\",1\nNet mismatch;2\nOpen Circuit|3\nShort Circuit\t4\n'Port Check': 5\n"
		assert.Equal(t, []RuleCount{
			{Rule: "Port Check", Count: 6},
			{Rule: "Short Circuit", Count: 4},
			{Rule: "Open Circuit", Count: 3},
			{Rule: "Net mismatch", Count: 2},
		}, ParseDelimited(in))
	})

	t.Run("ties keep first seen order", func(t *testing.T) {
		assert.Equal(t, []RuleCount{
			{Rule: "c", Count: 5},
			{Rule: "b", Count: 2},
			{Rule: "a", Count: 2},
		}, Parse("b,2\na,2\nc,5"))
	})
}

func TestParseBagOfWords(t *testing.T) {
	in := "Device size error (W=2.5) at 120\nDevice size error (W=3) at 7\n\nLatchup\n"
	res := ParseWithStrategy(in)
	assert.Equal(t, StrategyBagOfWords, res.Strategy)
	assert.Equal(t, []RuleCount{
		{Rule: "Device size error at", Count: 2},
		{Rule: "Latchup", Count: 1},
	}, res.Rows)

	assert.Equal(t, "Port mismatch", normalizeLine(`  "explanation": "Port mismatch (see 3)"`))
}

func TestParseEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t\r\n"} {
		res := ParseWithStrategy(in)
		assert.Empty(t, res.Rows)
		assert.NotNil(t, res.Rows)
		assert.Equal(t, StrategyNone, res.Strategy)
	}
}

func TestParseMalformedJSONFallsThrough(t *testing.T) {
	res := ParseWithStrategy(`{"rules": [{"explanation": "broken", "total_violations": 2}`)
	assert.Equal(t, StrategyLineJSON, res.Strategy)
	assert.Equal(t, []RuleCount{{Rule: "broken", Count: 1}}, res.Rows)

	res = ParseWithStrategy(`{"rules": [{"rule": "truncated`)
	require.NotEmpty(t, res.Rows)
	assert.Equal(t, StrategyBagOfWords, res.Strategy)
}

func TestRoundTripThroughDelimited(t *testing.T) {
	in := `{"rules": [
		{"explanation": "Open Circuit", "total_violations": 4},
		{"explanation": "Short Circuit", "violations": [1]},
		{"explanation": "Net mismatch, VDD", "total_violations": 2}
	]}`
	first := Parse(in)
	require.Len(t, first, 3)

	again := Parse(FormatDelimited(first))
	assert.ElementsMatch(t, first, again)
}

func TestStrategyPanicIsContained(t *testing.T) {
	s := Strategy{Name: "boom", Parse: func(string) []RuleCount { panic("bad input") }}
	assert.Nil(t, runStrategy(s, "x"))
}

func TestFilterAndTotal(t *testing.T) {
	rows := []RuleCount{
		{Rule: "Open Circuit", Count: 4},
		{Rule: "Latchup Error", Count: 2},
		{Rule: "Short Circuit", Count: 1},
	}
	orig := append([]RuleCount(nil), rows...)

	tests := []struct {
		name string
		q    string
		want []string
	}{
		{"empty keeps all", "", []string{"Open Circuit", "Latchup Error", "Short Circuit"}},
		{"case-insensitive", "CIRCUIT", []string{"Open Circuit", "Short Circuit"}},
		{"mixed case", "lAtChUp", []string{"Latchup Error"}},
		{"no match", "antenna", []string{}},
		{"whitespace is significant", "p ", []string{}},
		{"inner space", "n c", []string{"Open Circuit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(rows, tt.q)
			names := make([]string, 0, len(got))
			for _, r := range got {
				names = append(names, r.Rule)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, orig, rows)
			assert.Equal(t, 7, Total(rows))
		})
	}

	assert.Equal(t, 0, Total(nil))
	assert.NotNil(t, Filter(nil, "x"))
}

func TestMergeSumsAndKeepsFirstSeenTies(t *testing.T) {
	merged := Merge(
		[]RuleCount{{Rule: "Short Circuit", Count: 2}, {Rule: "Open Circuit", Count: 1}},
		[]RuleCount{{Rule: "Open Circuit", Count: 1}, {Rule: "Latchup Error", Count: 5}},
	)
	assert.Equal(t, []RuleCount{
		{Rule: "Latchup Error", Count: 5},
		{Rule: "Short Circuit", Count: 2},
		{Rule: "Open Circuit", Count: 2},
	}, merged)
	assert.Equal(t, 9, Total(merged))

	assert.Equal(t, []RuleCount{}, Merge())
	assert.Equal(t, []RuleCount{}, Merge(nil, []RuleCount{}))
}

func TestLargeViolationCounts(t *testing.T) {
	rows := Parse(`{"rules": [
		{"explanation": "Open Circuit", "total_violations": 5e9},
		{"explanation": "Short Circuit", "total_violations": "3000000000"},
		{"explanation": "Latchup Error", "total_violations": 1e300}
	]}`)
	assert.Equal(t, []RuleCount{
		{Rule: "Latchup Error", Count: math.MaxInt},
		{Rule: "Open Circuit", Count: 5000000000},
		{Rule: "Short Circuit", Count: 3000000000},
	}, rows)
}
