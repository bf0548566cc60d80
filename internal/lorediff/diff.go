// Package lorediff computes line diffs between lore versions for display.
package lorediff

import "strings"

// DefaultCellBudget caps the LCS table size (rows × columns).
const DefaultCellBudget = 1_000_000

// Op marks a diff line as unchanged, added or removed.
type Op string

const (
	OpEqual   Op = "equal"
	OpAdded   Op = "added"
	OpRemoved Op = "removed"
)

// Line is one row of the rendered diff. OldLine and NewLine are 1-based and
// zero when the line does not exist on that side.
type Line struct {
	Op      Op     `json:"op"`
	Text    string `json:"text"`
	OldLine int    `json:"oldLine"`
	NewLine int    `json:"newLine"`
}

// Result is a full line diff with added and removed line counts.
// EndNewline is set when only the final newline differs in presence.
type Result struct {
	Lines   []Line `json:"lines"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	// Approximate is set when the changed region exceeded the cell budget and
	// was reported as a block replacement.
	Approximate bool `json:"approximate"`
	EndNewline  bool `json:"endNewline"`
}

// Diff compares from and to line by line. budget <= 0 uses DefaultCellBudget.
func Diff(from, to string, budget int) Result {
	if budget <= 0 {
		budget = DefaultCellBudget
	}
	a := SplitLines(from)
	b := SplitLines(to)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	w := &writer{}
	for i := 0; i < prefix; i++ {
		w.equal(a[i])
	}

	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]
	if len(midA)*len(midB) > budget {
		w.result.Approximate = true
		for _, line := range midA {
			w.removed(line)
		}
		for _, line := range midB {
			w.added(line)
		}
	} else {
		lcs(w, midA, midB)
	}

	for i := len(a) - suffix; i < len(a); i++ {
		w.equal(a[i])
	}
	if w.result.Lines == nil {
		w.result.Lines = []Line{}
	}
	w.result.EndNewline = endsWithNewline(from) != endsWithNewline(to)
	return w.result
}

// SplitLines splits text on LF after normalising CRLF. A trailing newline does
// not produce an empty final line and empty text has no lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

func endsWithNewline(text string) bool {
	return strings.HasSuffix(text, "\n")
}

func lcs(w *writer, a, b []string) {
	n, m := len(a), len(b)
	// table[i][j] holds the LCS length of a[i:] and b[j:].
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			w.equal(a[i])
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			w.removed(a[i])
			i++
		default:
			w.added(b[j])
			j++
		}
	}
	for ; i < n; i++ {
		w.removed(a[i])
	}
	for ; j < m; j++ {
		w.added(b[j])
	}
}

type writer struct {
	result  Result
	oldLine int
	newLine int
}

func (w *writer) equal(text string) {
	w.oldLine++
	w.newLine++
	w.result.Lines = append(w.result.Lines, Line{Op: OpEqual, Text: text, OldLine: w.oldLine, NewLine: w.newLine})
}

func (w *writer) removed(text string) {
	w.oldLine++
	w.result.Removed++
	w.result.Lines = append(w.result.Lines, Line{Op: OpRemoved, Text: text, OldLine: w.oldLine})
}

func (w *writer) added(text string) {
	w.newLine++
	w.result.Added++
	w.result.Lines = append(w.result.Lines, Line{Op: OpAdded, Text: text, NewLine: w.newLine})
}
