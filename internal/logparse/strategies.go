package logparse

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	explanationPattern = regexp.MustCompile(`(?i)["']?explanation["']?\s*:\s*["']([^"\\]*(?:\\.[^"\\]*)*)["']`)
	delimitedPattern   = regexp.MustCompile(`^(.*?)[,;:|\t]\s*(\d+)\s*$`)

	// bag-of-words normalisation, applied in order
	explanationPrefix = regexp.MustCompile(`(?i)^[\s"']*explanation["']?\s*:\s*`)
	edgeQuotes        = regexp.MustCompile(`^["']|["']$`)
	trailingPunct     = regexp.MustCompile(`[,}]$`)
	parenAside        = regexp.MustCompile(`\([^)]*\)`)
	standaloneNumber  = regexp.MustCompile(`\b-?\d+(\.\d+)?\b`)
	whitespaceRun     = regexp.MustCompile(`\s{2,}`)
)

// ParseRulesDocument handles a whole-document JSON object carrying a "rules"
// array, as exported by the LVS report writer.
func ParseRulesDocument(text string) []RuleCount {
	var root map[string]any
	if err := json.Unmarshal([]byte(text), &root); err != nil {
		return nil
	}

	rules, ok := root["rules"].([]any)
	if !ok {
		return nil
	}

	t := newTally()
	for _, item := range rules {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		rule := strings.TrimSpace(stringify(firstTruthy(entry, "explanation", "rule", "message")))
		if rule == "" {
			continue
		}

		t.add(rule, violationCount(entry))
	}

	return t.sorted()
}

// ParseLineJSON handles NDJSON logs and loose "explanation": "..." lines.
// Every recognised line counts as one occurrence of its rule.
func ParseLineJSON(text string) []RuleCount {
	t := newTally()

	for _, line := range splitLines(text) {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}

		if rule, ok := ruleFromJSONLine(s); ok {
			t.add(rule, 1)
			continue
		}

		m := explanationPattern.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		rule := strings.ReplaceAll(m[1], `\"`, `"`)
		rule = strings.TrimSpace(strings.ReplaceAll(rule, `\n`, " "))
		if rule != "" {
			t.add(rule, 1)
		}
	}

	return t.sorted()
}

// ParseDelimited handles "<rule><sep><count>" lines where sep is one of
// comma, semicolon, colon, pipe or tab.
func ParseDelimited(text string) []RuleCount {
	t := newTally()

	for _, line := range splitLines(text) {
		m := delimitedPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		rule := edgeQuotes.ReplaceAllString(strings.TrimSpace(m[1]), "")
		count, err := strconv.Atoi(m[2])
		if rule == "" || err != nil {
			continue
		}
		t.add(rule, count)
	}

	return t.sorted()
}

// ParseBagOfWords is the last resort: each non-blank line is normalised and
// counted as one occurrence. The normalisation is lossy by nature.
func ParseBagOfWords(text string) []RuleCount {
	t := newTally()

	for _, line := range splitLines(text) {
		if rule := normalizeLine(line); rule != "" {
			t.add(rule, 1)
		}
	}

	return t.sorted()
}

func normalizeLine(line string) string {
	s := strings.TrimSpace(line)
	if s == "" {
		return ""
	}
	s = explanationPrefix.ReplaceAllString(s, "")
	s = edgeQuotes.ReplaceAllString(s, "")
	s = trailingPunct.ReplaceAllString(s, "")
	s = parenAside.ReplaceAllString(s, " ")
	s = standaloneNumber.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ruleFromJSONLine extracts explanation, message or rule (first one present)
// from a single JSON object line. Only non-blank strings count.
func ruleFromJSONLine(line string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return "", false
	}

	for _, key := range []string{"explanation", "message", "rule"} {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return "", false
		}
		return strings.TrimSpace(s), true
	}

	return "", false
}

// violationCount prefers total_violations, then the length of a violations
// array. Anything non-numeric counts as zero.
func violationCount(entry map[string]any) int {
	if v, ok := entry["total_violations"]; ok && v != nil {
		return toCount(v)
	}
	if list, ok := entry["violations"].([]any); ok {
		return len(list)
	}
	return 0
}

func toCount(v any) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

// firstTruthy returns the first value among keys that is set and not empty,
// zero or false.
func firstTruthy(entry map[string]any, keys ...string) any {
	for _, k := range keys {
		switch v := entry[k].(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
		case float64:
			if v == 0 || math.IsNaN(v) {
				continue
			}
		case bool:
			if !v {
				continue
			}
		}
		return entry[k]
	}
	return nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
