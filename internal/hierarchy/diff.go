// Package hierarchy compares the cell names of a layout hierarchy against a
// user supplied name list.
package hierarchy

// Result summarises which names are present in the layout and which supplied
// names are missing from it.
type Result struct {
	Present      []string `json:"present"`
	Absent       []string `json:"absent"`
	TotalPresent int      `json:"totalPresent"`
	TotalAbsent  int      `json:"totalAbsent"`
	Total        int      `json:"total"`
}

// Diff reports every canonical name as present (deduplicated, canonical
// order) and every supplied name missing from the canonical set as absent
// (deduplicated, first-seen order). Comparison is exact and case-sensitive.
func Diff(canonical, supplied []string) Result {
	present := Unique(canonical)

	inLayout := make(map[string]struct{}, len(present))
	for _, n := range present {
		inLayout[n] = struct{}{}
	}

	absent := make([]string, 0)
	for _, n := range Unique(supplied) {
		if _, ok := inLayout[n]; !ok {
			absent = append(absent, n)
		}
	}

	return Result{
		Present:      present,
		Absent:       absent,
		TotalPresent: len(present),
		TotalAbsent:  len(absent),
		Total:        len(present) + len(absent),
	}
}

// Intersect returns the supplied names, deduplicated in first-seen order,
// that also appear in canonical.
func Intersect(canonical, supplied []string) []string {
	set := make(map[string]struct{}, len(canonical))
	for _, n := range canonical {
		set[n] = struct{}{}
	}

	out := make([]string, 0)
	for _, n := range Unique(supplied) {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Unique drops repeated names, keeping the first occurrence. The input is
// not modified and the result is never nil.
func Unique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
