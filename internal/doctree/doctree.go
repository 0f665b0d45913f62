package doctree

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRange is returned for line ranges with end < start or indices out of bounds.
var ErrInvalidRange = errors.New("invalid range")

// SectionType identifies what kind of line opened a section.
type SectionType int

const (
	TypeRoot SectionType = iota
	TypeArticle
	TypeHeading
	TypeBoldHeading
	TypeLabel
	TypeText
)

func (t SectionType) String() string {
	switch t {
	case TypeRoot:
		return "root"
	case TypeArticle:
		return "article"
	case TypeHeading:
		return "heading"
	case TypeBoldHeading:
		return "bold_heading"
	case TypeLabel:
		return "label"
	case TypeText:
		return "text"
	default:
		return fmt.Sprintf("SectionType(%d)", int(t))
	}
}

func (t SectionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *SectionType) UnmarshalText(b []byte) error {
	for c := TypeRoot; c <= TypeText; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown section type %q", b)
}

// Priorities order containment: a section may only hold strictly larger values.
const (
	PriorityRoot        = 0
	PriorityArticle     = 1
	PriorityBoldHeading = 1000
	PriorityLabel       = 1001
	PriorityText        = 10000

	priorityHeadingBase = 10
	MaxHeadingLevel     = 256
)

// HeadingPriority returns the priority of a heading with the given marker count.
func HeadingPriority(level int) int {
	if level < 1 {
		level = 1
	}
	if level > MaxHeadingLevel {
		level = MaxHeadingLevel
	}
	return priorityHeadingBase + level
}

// Task is a checkbox list item extracted from a line.
type Task struct {
	ID         string            `json:"id"`
	Line       int               `json:"line"`
	Status     string            `json:"status"`
	Completed  bool              `json:"completed"`
	Text       string            `json:"text"`
	Raw        string            `json:"raw"`
	Attributes map[string]string `json:"attributes,omitempty"`
	SectionID  int               `json:"section_id"`
}

// ExplicitID returns the value of the task's @id attribute, if any.
func (t *Task) ExplicitID() string {
	return strings.TrimSpace(t.Attributes["id"])
}

// Clone returns a copy that shares nothing with t.
func (t *Task) Clone() Task {
	c := *t
	if t.Attributes != nil {
		c.Attributes = make(map[string]string, len(t.Attributes))
		for k, v := range t.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// ClassifiedLine is the classifier's verdict for one line.
type ClassifiedLine struct {
	Line       int // 1-based
	Type       SectionType
	Priority   int
	Level      int
	Text       string
	Attributes map[string]string
	Raw        string
	Fence      bool // line is a code fence delimiter
	InCode     bool // line lies inside a fenced block
	Task       *Task
	Tag        string
}

// IsSection reports whether the line opens a section.
func (c ClassifiedLine) IsSection() bool {
	return c.Type != TypeText && c.Type != TypeRoot
}

// Section is one node of the document tree. A section owns its children;
// the parent pointer is a back-reference used for breadcrumbs only.
type Section struct {
	ID         int               `json:"id"`
	Type       SectionType       `json:"type"`
	Priority   int               `json:"priority"`
	Level      int               `json:"level,omitempty"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartLine  int               `json:"start_line"`
	EndLine    int               `json:"end_line"`
	Children   []*Section        `json:"children,omitempty"`
	Tasks      []*Task           `json:"-"`

	parent *Section
	path   []*Section
}

// NewRoot creates the synthetic root spanning lines [1, lineCount].
// An empty document gets a root spanning [0, 0].
func NewRoot(lineCount int) *Section {
	if lineCount < 1 {
		return &Section{Type: TypeRoot, Priority: PriorityRoot}
	}
	return &Section{Type: TypeRoot, Priority: PriorityRoot, StartLine: 1, EndLine: lineCount}
}

// NewSection creates a section opened by the classified line.
func NewSection(id int, cl ClassifiedLine) *Section {
	return &Section{
		ID:         id,
		Type:       cl.Type,
		Priority:   cl.Priority,
		Level:      cl.Level,
		Text:       cl.Text,
		Attributes: cl.Attributes,
		StartLine:  cl.Line,
		EndLine:    cl.Line,
	}
}

func (s *Section) Parent() *Section { return s.parent }

func (s *Section) IsRoot() bool { return s.Type == TypeRoot }

// CanContain reports whether candidate may nest inside s.
func (s *Section) CanContain(candidate *Section) bool {
	return s.CanContainPriority(candidate.Priority)
}

// CanContainPriority reports whether a line of the given priority may nest inside s.
func (s *Section) CanContainPriority(priority int) bool {
	return s.IsRoot() || priority > s.Priority
}

// ContainsLine is a closed-interval test.
func (s *Section) ContainsLine(n int) bool {
	return n >= s.StartLine && n <= s.EndLine
}

// UpdateBounds sets the section's line span. Sibling overlap is the builder's concern.
func (s *Section) UpdateBounds(start, end int) error {
	if end < start || start < 1 {
		return fmt.Errorf("section %d bounds [%d,%d]: %w", s.ID, start, end, ErrInvalidRange)
	}
	s.StartLine = start
	s.EndLine = end
	s.path = nil
	return nil
}

// AddChild appends c as the last child of s.
func (s *Section) AddChild(c *Section) {
	c.parent = s
	c.path = nil
	s.Children = append(s.Children, c)
}

// Path returns root→…→s.
func (s *Section) Path() []*Section {
	if s.path != nil {
		return s.path
	}
	var rev []*Section
	for n := s; n != nil; n = n.parent {
		rev = append(rev, n)
	}
	slices.Reverse(rev)
	s.path = rev
	return rev
}

// Breadcrumb returns the section texts from the outermost section down to s.
// The root does not contribute.
func (s *Section) Breadcrumb() []string {
	var bc []string
	for _, n := range s.Path() {
		if n.IsRoot() {
			continue
		}
		bc = append(bc, n.Text)
	}
	return bc
}

// Walk visits s and its descendants in document order until fn returns false.
func (s *Section) Walk(fn func(*Section) bool) bool {
	if !fn(s) {
		return false
	}
	for _, c := range s.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Innermost returns the deepest section under s containing line n, or s
// itself when no child does.
func (s *Section) Innermost(n int) *Section {
	cur := s
	for {
		i, found := slices.BinarySearchFunc(cur.Children, n, func(c *Section, n int) int {
			switch {
			case c.EndLine < n:
				return -1
			case c.StartLine > n:
				return 1
			}
			return 0
		})
		if !found {
			return cur
		}
		cur = cur.Children[i]
	}
}

// TaskIDs returns the ids of the tasks directly contained in s.
func (s *Section) TaskIDs() []string {
	ids := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// Signature renders s and its subtree as a structural fingerprint that
// ignores section ids. Two trees parsed from the same lines have equal
// signatures.
func (s *Section) Signature() string {
	var b strings.Builder
	s.writeSignature(&b, 0)
	return b.String()
}

func (s *Section) writeSignature(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "%s/%d/%d %q [%d-%d]%s\n", s.Type, s.Priority, s.Level, s.Text, s.StartLine, s.EndLine, attrSig(s.Attributes))
	for _, t := range s.Tasks {
		b.WriteString(strings.Repeat("  ", depth+1))
		fmt.Fprintf(b, "task %s L%d [%s] %q%s\n", t.ID, t.Line, t.Status, t.Text, attrSig(t.Attributes))
	}
	for _, c := range s.Children {
		c.writeSignature(b, depth+1)
	}
}

func attrSig(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " @%s(%s)", k, attrs[k])
	}
	return b.String()
}

// Summary is a detached, JSON-friendly view of a section.
type Summary struct {
	ID         int               `json:"id"`
	Type       SectionType       `json:"type"`
	Level      int               `json:"level,omitempty"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartLine  int               `json:"start_line"`
	EndLine    int               `json:"end_line"`
	Breadcrumb []string          `json:"breadcrumb"`
	TaskIDs    []string          `json:"task_ids"`
	Children   int               `json:"children"`
}

// Summarize copies the fields of s that callers may keep across edits.
func Summarize(s *Section) Summary {
	bc := s.Breadcrumb()
	if bc == nil {
		bc = []string{}
	}
	return Summary{
		ID:         s.ID,
		Type:       s.Type,
		Level:      s.Level,
		Text:       s.Text,
		Attributes: s.Attributes,
		StartLine:  s.StartLine,
		EndLine:    s.EndLine,
		Breadcrumb: bc,
		TaskIDs:    s.TaskIDs(),
		Children:   len(s.Children),
	}
}
