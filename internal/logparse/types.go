package logparse

// RuleCount is one row of an aggregated violation table
type RuleCount struct {
	Rule  string `json:"rule" parquet:"rule"`
	Count int    `json:"count" parquet:"count"`
}

// StrategyName identifies which tier of the parser produced a result
type StrategyName string

const (
	StrategyRulesDocument StrategyName = "rules_document"
	StrategyLineJSON      StrategyName = "line_json"
	StrategyDelimited     StrategyName = "delimited"
	StrategyBagOfWords    StrategyName = "bag_of_words"
	StrategyNone          StrategyName = "none"
)

// Strategy is a single parsing tier. It returns nil or an empty slice when
// the input does not have the shape it understands.
type Strategy struct {
	Name  StrategyName
	Parse func(text string) []RuleCount
}

// Result is the outcome of ParseWithStrategy
type Result struct {
	Strategy StrategyName `json:"strategy"`
	Rows     []RuleCount  `json:"rows"`
}
