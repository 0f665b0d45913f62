package doctree

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

// tree builds root[1-10] > A[1-6] > B[3-6], root > C[7-10].
func tree() (root, a, b, c *Section) {
	root = NewRoot(10)
	a = NewSection(1, ClassifiedLine{Line: 1, Type: TypeHeading, Priority: HeadingPriority(1), Level: 1, Text: "A"})
	b = NewSection(2, ClassifiedLine{Line: 3, Type: TypeHeading, Priority: HeadingPriority(2), Level: 2, Text: "B"})
	c = NewSection(3, ClassifiedLine{Line: 7, Type: TypeHeading, Priority: HeadingPriority(1), Level: 1, Text: "C"})
	a.UpdateBounds(1, 6)
	b.UpdateBounds(3, 6)
	c.UpdateBounds(7, 10)
	root.AddChild(a)
	a.AddChild(b)
	root.AddChild(c)
	return root, a, b, c
}

func TestInnermost(t *testing.T) {
	root, a, b, c := tree()
	tests := []struct {
		line int
		want *Section
	}{
		{1, a},
		{2, a},
		{3, b},
		{6, b},
		{7, c},
		{10, c},
		{11, root},
	}
	for _, tt := range tests {
		if got := root.Innermost(tt.line); got != tt.want {
			t.Errorf("Innermost(%d) = %q, want %q", tt.line, got.Text, tt.want.Text)
		}
	}
}

func TestBreadcrumbAndPath(t *testing.T) {
	root, a, b, _ := tree()
	if got := b.Breadcrumb(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Breadcrumb = %v", got)
	}
	path := b.Path()
	if len(path) != 3 || path[0] != root || path[1] != a || path[2] != b {
		t.Errorf("unexpected path %v", path)
	}
	if root.Breadcrumb() != nil {
		t.Errorf("root breadcrumb should be empty")
	}
}

func TestCanContainPriority(t *testing.T) {
	root, a, _, _ := tree()
	if !root.CanContainPriority(PriorityArticle) {
		t.Error("root must contain articles")
	}
	if !a.CanContainPriority(HeadingPriority(2)) {
		t.Error("h1 must contain h2")
	}
	if a.CanContainPriority(HeadingPriority(1)) {
		t.Error("h1 must not contain a sibling h1")
	}
	if !a.CanContainPriority(PriorityBoldHeading) {
		t.Error("headings contain bold headings")
	}
}

func TestHeadingPriorityClamps(t *testing.T) {
	if HeadingPriority(0) != HeadingPriority(1) {
		t.Error("level below 1 should clamp")
	}
	if HeadingPriority(1000) != HeadingPriority(MaxHeadingLevel) {
		t.Error("level above max should clamp")
	}
	if HeadingPriority(MaxHeadingLevel) >= PriorityBoldHeading {
		t.Error("deepest heading must still rank above bold headings")
	}
}

func TestUpdateBoundsRejectsInvalid(t *testing.T) {
	_, a, _, _ := tree()
	if err := a.UpdateBounds(5, 4); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("want ErrInvalidRange, got %v", err)
	}
	if err := a.UpdateBounds(0, 4); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("want ErrInvalidRange, got %v", err)
	}
	if a.StartLine != 1 || a.EndLine != 6 {
		t.Errorf("bounds changed on error: [%d,%d]", a.StartLine, a.EndLine)
	}
}

func TestSignatureIgnoresIDs(t *testing.T) {
	r1, _, _, _ := tree()
	r2, a2, _, _ := tree()
	a2.ID = 99
	if r1.Signature() != r2.Signature() {
		t.Error("signatures should ignore ids")
	}
	a2.Text = "Z"
	if r1.Signature() == r2.Signature() {
		t.Error("signatures should reflect text")
	}
}

func TestSummaryJSON(t *testing.T) {
	_, _, b, _ := tree()
	b.Tasks = []*Task{{ID: "t1", Line: 4}}
	data, err := json.Marshal(Summarize(b))
	if err != nil {
		t.Fatal(err)
	}
	var got Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeHeading || got.Text != "B" || !reflect.DeepEqual(got.TaskIDs, []string{"t1"}) {
		t.Errorf("unexpected summary %+v", got)
	}
	var st SectionType
	if err := st.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("want error for unknown section type")
	}
}

func TestTaskClone(t *testing.T) {
	orig := &Task{ID: "x", Attributes: map[string]string{"id": " x "}}
	c := orig.Clone()
	c.Attributes["id"] = "y"
	if orig.Attributes["id"] != " x " {
		t.Error("clone shares attributes")
	}
	if orig.ExplicitID() != "x" {
		t.Errorf("ExplicitID = %q", orig.ExplicitID())
	}
}
