package lorediff

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDiffIdentical(t *testing.T) {
	got := Diff("a\nb\n", "a\r\nb\r\n", 0)
	want := Result{
		Lines: []Line{
			{Op: OpEqual, Text: "a", OldLine: 1, NewLine: 1},
			{Op: OpEqual, Text: "b", OldLine: 2, NewLine: 2},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestDiffReportsFinalNewlineChange(t *testing.T) {
	got := Diff("a\nb", "a\nb\n", 0)
	if !got.EndNewline || got.Added != 0 || got.Removed != 0 || len(got.Lines) != 2 {
		t.Fatalf("expected only the final newline flagged, got %+v", got)
	}

	if Diff("a\nb\n", "a\nb", 0).EndNewline != true {
		t.Fatal("expected removal of the final newline to be flagged")
	}
	if Diff("", "", 0).EndNewline {
		t.Fatal("empty inputs have no newline change")
	}
}

func TestDiffEmptyInputs(t *testing.T) {
	got := Diff("", "", 0)
	if len(got.Lines) != 0 || got.Lines == nil {
		t.Fatalf("expected empty non-nil lines, got %#v", got.Lines)
	}

	got = Diff("", "one\ntwo", 0)
	if got.Added != 2 || got.Removed != 0 {
		t.Fatalf("expected 2 added, got %+v", got)
	}
}

func TestDiffReplacementInMiddle(t *testing.T) {
	got := Diff("title\nold body\nfooter", "title\nnew body\nextra\nfooter", 0)
	want := Result{
		Lines: []Line{
			{Op: OpEqual, Text: "title", OldLine: 1, NewLine: 1},
			{Op: OpRemoved, Text: "old body", OldLine: 2},
			{Op: OpAdded, Text: "new body", NewLine: 2},
			{Op: OpAdded, Text: "extra", NewLine: 3},
			{Op: OpEqual, Text: "footer", OldLine: 3, NewLine: 4},
		},
		Added:   2,
		Removed: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestDiffKeepsCommonSubsequence(t *testing.T) {
	got := Diff("a\nb\nc\nd", "b\nx\nd", 0)
	var ops []string
	for _, line := range got.Lines {
		ops = append(ops, string(line.Op)+":"+line.Text)
	}
	want := []string{"removed:a", "equal:b", "removed:c", "added:x", "equal:d"}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("unexpected ops (-want +got):\n%s", diff)
	}
}

func TestDiffNormalisesCRLF(t *testing.T) {
	got := Diff("one\r\ntwo\r\n", "one\ntwo\n", 0)
	if got.Added != 0 || got.Removed != 0 {
		t.Fatalf("CRLF should not count as a change: %+v", got)
	}
}

func TestDiffOverBudgetFallsBackToBlock(t *testing.T) {
	from := "head\n" + strings.Repeat("x\n", 20) + "tail"
	to := "head\n" + strings.Repeat("y\n", 20) + "tail"
	got := Diff(from, to, 10)
	if !got.Approximate {
		t.Fatal("expected approximate result")
	}
	if got.Added != 20 || got.Removed != 20 {
		t.Fatalf("unexpected totals: +%d -%d", got.Added, got.Removed)
	}
	if got.Lines[0].Op != OpEqual || got.Lines[len(got.Lines)-1].Op != OpEqual {
		t.Fatal("common prefix and suffix must be kept")
	}
	if got.Lines[1].Op != OpRemoved || got.Lines[21].Op != OpAdded {
		t.Fatal("removed block must precede added block")
	}
}
