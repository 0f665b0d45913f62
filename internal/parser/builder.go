package parser

import (
	"github.com/dgallion1/zortex/internal/doctree"
)

// Builder folds classified lines into a section tree in a single pass.
// It keeps an explicit stack of open sections with the root at the bottom.
type Builder struct {
	stack  []*doctree.Section
	nextID func() int
	owners []*doctree.Section
	tasks  []*doctree.Task
	err    error
}

// NewBuilder starts a builder from the given open-section stack. stack[0]
// must be the root. For a full parse the stack is just the root; an
// incremental parse seeds it with the ancestors of the line before the edit.
func NewBuilder(stack []*doctree.Section, nextID func() int) *Builder {
	s := make([]*doctree.Section, len(stack))
	copy(s, stack)
	return &Builder{stack: s, nextID: nextID}
}

// Step consumes one classified line.
func (b *Builder) Step(cl doctree.ClassifiedLine) {
	if cl.IsSection() {
		b.popFor(cl.Priority, cl.Line-1)
		sec := doctree.NewSection(b.nextID(), cl)
		b.top().AddChild(sec)
		b.stack = append(b.stack, sec)
	} else if cl.Task != nil {
		top := b.top()
		cl.Task.SectionID = top.ID
		top.Tasks = append(top.Tasks, cl.Task)
		b.tasks = append(b.tasks, cl.Task)
	}
	b.owners = append(b.owners, b.top())
}

// Finish closes every open section at lastLine.
func (b *Builder) Finish(lastLine int) error {
	for i := len(b.stack) - 1; i >= 0; i-- {
		sec := b.stack[i]
		if sec.IsRoot() && lastLine < 1 {
			continue
		}
		b.setEnd(sec, lastLine)
	}
	b.stack = b.stack[:0]
	return b.err
}

// CloseAbove pops every section above depth, ending them at end.
func (b *Builder) CloseAbove(depth, end int) {
	for len(b.stack) > depth {
		b.setEnd(b.top(), end)
		b.stack = b.stack[:len(b.stack)-1]
	}
}

// DepthAfterPop returns how many sections would stay open if a line of the
// given priority arrived now.
func (b *Builder) DepthAfterPop(priority int) int {
	return DepthAfterPop(b.stack, priority)
}

// DepthAfterPop applies the pop rule to a root-first stack without mutating it.
func DepthAfterPop(stack []*doctree.Section, priority int) int {
	n := len(stack)
	for n > 1 && stack[n-1].Priority >= priority {
		n--
	}
	return n
}

// Stack returns the open sections, root first.
func (b *Builder) Stack() []*doctree.Section { return b.stack }

// Owners returns the innermost section for each processed line.
func (b *Builder) Owners() []*doctree.Section { return b.owners }

// Tasks returns the tasks attached so far, in line order.
func (b *Builder) Tasks() []*doctree.Task { return b.tasks }

// Err returns the first bounds error seen.
func (b *Builder) Err() error { return b.err }

func (b *Builder) top() *doctree.Section { return b.stack[len(b.stack)-1] }

func (b *Builder) popFor(priority, end int) {
	for len(b.stack) > 1 && b.top().Priority >= priority {
		b.setEnd(b.top(), end)
		b.stack = b.stack[:len(b.stack)-1]
	}
}

func (b *Builder) setEnd(sec *doctree.Section, end int) {
	start := sec.StartLine
	if sec.IsRoot() {
		start = 1
	}
	if err := sec.UpdateBounds(start, end); err != nil && b.err == nil {
		b.err = err
	}
}

// Parse builds a tree from lines with a throwaway id sequence.
func Parse(lines []string) (*doctree.Section, []*doctree.Task, error) {
	id := 0
	root := doctree.NewRoot(len(lines))
	b := NewBuilder([]*doctree.Section{root}, func() int { id++; return id })
	for _, cl := range ClassifyAll(lines) {
		b.Step(cl)
	}
	if err := b.Finish(len(lines)); err != nil {
		return nil, nil, err
	}
	return root, b.Tasks(), nil
}
