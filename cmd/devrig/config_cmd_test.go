package main

import (
	"strings"
	"testing"
)

func TestDiffLinesNoChange(t *testing.T) {
	doc := "a\nb\nc\n"
	if diff := diffLines(doc, doc); diff != nil {
		t.Errorf("identical documents should produce no diff, got %v", diff)
	}
}

func TestDiffLinesAdditionAndRemoval(t *testing.T) {
	before := "project = \"shop\"\nport = 3000\nold = true\n"
	after := "project = \"shop\"\nport = 3001\nnew = true\n"

	diff := diffLines(before, after)
	joined := strings.Join(diff, "\n")

	for _, want := range []string{"- port = 3000", "+ port = 3001", "- old = true", "+ new = true"} {
		if !strings.Contains(joined, want) {
			t.Errorf("diff missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "project") {
		t.Errorf("unchanged lines must not appear in the diff:\n%s", joined)
	}
}

func TestDiffLinesPureAppend(t *testing.T) {
	diff := diffLines("a\n", "a\nb\n")
	if len(diff) != 1 || diff[0] != "+ b" {
		t.Errorf("diff = %v, want [+ b]", diff)
	}
}
