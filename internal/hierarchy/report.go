package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// ReportOptions controls UnifiedReport output
type ReportOptions struct {
	// Context is the number of unchanged names around each hunk. 0 means 3.
	Context int

	// LayoutName and ListName label the two sides of the patch
	LayoutName string
	ListName   string
}

// UnifiedReport renders the summary counts followed by a unified diff of the
// sorted layout names against the sorted supplied names. Lines starting with
// "+" are names only the supplied list has.
func UnifiedReport(canonical, supplied []string, opt ReportOptions) string {
	res := Diff(canonical, supplied)

	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	from := opt.LayoutName
	if from == "" {
		from = "layout"
	}
	to := opt.ListName
	if to == "" {
		to = "cell-list"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total cells present in layout: %d\n", res.TotalPresent)
	fmt.Fprintf(&b, "Total cells not present in layout: %d\n", res.TotalAbsent)
	fmt.Fprintf(&b, "Total cells: %d\n", res.Total)

	u := difflib.UnifiedDiff{
		A:        asLines(res.Present),
		B:        asLines(Unique(supplied)),
		FromFile: from,
		ToFile:   to,
		Context:  ctx,
	}
	patch, err := difflib.GetUnifiedDiffString(u)
	if err != nil || patch == "" {
		return b.String()
	}

	b.WriteByte('\n')
	b.WriteString(patch)
	return b.String()
}

func asLines(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	for i, n := range sorted {
		sorted[i] = n + "\n"
	}
	return sorted
}
