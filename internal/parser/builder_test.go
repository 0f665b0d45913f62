package parser

import (
	"testing"

	"github.com/dgallion1/zortex/internal/doctree"
)

func TestParse_WorkedExample(t *testing.T) {
	lines := []string{"# A", "## B", "- [ ] t1", "## C", "- [x] t2 @id(t2)"}
	root, tasks := mustParse(t, lines)

	if len(root.Children) != 1 {
		t.Fatalf("expected 1 top-level child, got %d", len(root.Children))
	}
	a := root.Children[0]
	if a.Type != doctree.TypeHeading || a.Level != 1 || a.Text != "A" {
		t.Errorf("expected Heading(1,A), got %s(%d,%s)", a.Type, a.Level, a.Text)
	}
	if a.StartLine != 1 || a.EndLine != 5 {
		t.Errorf("expected A to span 1-5, got %d-%d", a.StartLine, a.EndLine)
	}
	if len(a.Children) != 2 {
		t.Fatalf("expected 2 children under A, got %d", len(a.Children))
	}

	b, c := a.Children[0], a.Children[1]
	if b.Text != "B" || b.StartLine != 2 || b.EndLine != 3 {
		t.Errorf("expected B 2-3, got %q %d-%d", b.Text, b.StartLine, b.EndLine)
	}
	if c.Text != "C" || c.StartLine != 4 || c.EndLine != 5 {
		t.Errorf("expected C 4-5, got %q %d-%d", c.Text, c.StartLine, c.EndLine)
	}
	if len(b.Tasks) != 1 || b.Tasks[0].Completed || b.Tasks[0].Text != "t1" {
		t.Errorf("expected incomplete t1 under B, got %+v", b.Tasks)
	}
	if len(c.Tasks) != 1 || !c.Tasks[0].Completed || c.Tasks[0].ExplicitID() != "t2" {
		t.Errorf("expected complete t2 under C, got %+v", c.Tasks)
	}
	if len(tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(tasks))
	}
	if c.Tasks[0].SectionID != c.ID {
		t.Errorf("expected task section id %d, got %d", c.ID, c.Tasks[0].SectionID)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	root, tasks := mustParse(t, nil)
	if len(root.Children) != 0 || len(tasks) != 0 {
		t.Errorf("expected root-only tree, got %d children %d tasks", len(root.Children), len(tasks))
	}
	if !root.IsRoot() {
		t.Error("expected root")
	}
}

func TestParse_ContainmentAndSiblings(t *testing.T) {
	lines := []string{
		"@@Article",
		"# One",
		"**Bold**",
		"Label:",
		"text",
		"## Two",
		"Other:",
		"# Three",
		"@@Second",
		"## Four",
	}
	root, _ := mustParse(t, lines)

	root.Walk(func(s *doctree.Section) bool {
		for i, c := range s.Children {
			if !s.CanContain(c) {
				t.Errorf("%s %q cannot contain %s %q", s.Type, s.Text, c.Type, c.Text)
			}
			if c.StartLine < s.StartLine || c.EndLine > s.EndLine {
				t.Errorf("child %q [%d-%d] escapes parent %q [%d-%d]", c.Text, c.StartLine, c.EndLine, s.Text, s.StartLine, s.EndLine)
			}
			if i > 0 && s.Children[i-1].EndLine >= c.StartLine {
				t.Errorf("siblings %q and %q overlap", s.Children[i-1].Text, c.Text)
			}
		}
		return true
	})

	if len(root.Children) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(root.Children))
	}
	first := root.Children[0]
	if first.EndLine != 8 {
		t.Errorf("expected first article to end at 8, got %d", first.EndLine)
	}
	one := first.Children[0]
	if one.Text != "One" || one.EndLine != 7 {
		t.Errorf("expected One to end at 7, got %q %d", one.Text, one.EndLine)
	}
	bold := one.Children[0]
	if bold.Type != doctree.TypeBoldHeading || len(bold.Children) != 1 || bold.Children[0].Type != doctree.TypeLabel {
		t.Errorf("expected bold heading holding a label, got %+v", bold)
	}
}

func TestParse_BreadcrumbAndPath(t *testing.T) {
	root, _ := mustParse(t, []string{"@@Notes", "# Work", "## Meetings", "Agenda:", "- [ ] prep"})
	agenda := root.Children[0].Children[0].Children[0].Children[0]
	got := agenda.Breadcrumb()
	want := []string{"Notes", "Work", "Meetings", "Agenda"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("breadcrumb[%d]: expected %q, got %q", i, want[i], got[i])
		}
	}
	if p := agenda.Path(); p[0] != root || p[len(p)-1] != agenda {
		t.Error("expected path from root to section")
	}
}

func TestParse_Idempotent(t *testing.T) {
	lines := []string{"# A", "text", "```", "# hidden", "```", "## B", "- [ ] t"}
	r1, _ := mustParse(t, lines)
	r2, _ := mustParse(t, lines)
	if r1.Signature() != r2.Signature() {
		t.Errorf("expected identical signatures:\n%s\n%s", r1.Signature(), r2.Signature())
	}
}

func mustParse(t *testing.T, lines []string) (*doctree.Section, []*doctree.Task) {
	t.Helper()
	root, tasks, err := Parse(lines)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return root, tasks
}
