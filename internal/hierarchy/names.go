package hierarchy

import "strings"

// CellNode is one node of the GDS hierarchy tree returned by the backend
type CellNode struct {
	CellName     string     `json:"cellname"`
	Dependencies []CellNode `json:"dependencies,omitempty"`
}

// ParseNameList reads a cell list file: one name per line, "#" starts a
// comment, blank lines are skipped and duplicates dropped.
func ParseNameList(text string) []string {
	names := make([]string, 0)
	seen := make(map[string]struct{})

	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		n := strings.TrimSpace(line)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}

	return names
}

// Flatten merges a flat cell list with the names found in a hierarchy tree.
// List order comes first, then a depth-first walk of the tree.
func Flatten(cellList []string, tree []CellNode) []string {
	out := Unique(cellList)
	seen := make(map[string]struct{}, len(out))
	for _, n := range out {
		seen[n] = struct{}{}
	}

	var walk func(nodes []CellNode)
	walk = func(nodes []CellNode) {
		for _, node := range nodes {
			if node.CellName != "" {
				if _, dup := seen[node.CellName]; !dup {
					seen[node.CellName] = struct{}{}
					out = append(out, node.CellName)
				}
			}
			walk(node.Dependencies)
		}
	}
	walk(tree)

	return out
}
