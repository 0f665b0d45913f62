package document

import (
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/parser"
)

// Edits touching more than this share of a document of at least
// largeEditMinLines lines are reparsed in full.
const (
	largeEditMinLines = 64
	largeEditFraction = 0.5
)

// ambiguityError marks a state the incremental parser cannot resume from.
// It never leaves the package: the caller falls back to a full parse.
type ambiguityError struct {
	reason string
}

func (e *ambiguityError) Error() string { return "parse ambiguity: " + e.reason }

func ambiguous(reason string) error { return &ambiguityError{reason: reason} }

// ParseIncremental brings the document up to date with lines, reparsing only
// around the dirty ranges. Anything it cannot resolve is handled by a full parse.
func (d *Document) ParseIncremental(lines []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parseIncremental(lines)
}

func (d *Document) parseIncremental(lines []string) {
	if !d.parsed {
		d.fallback(lines, "no_tree")
		return
	}
	if len(d.dirty) == 0 {
		if len(lines) != len(d.lines) {
			d.fallback(lines, "untracked_change")
		}
		return
	}

	start := time.Now()
	if err := d.incremental(lines); err != nil {
		reason := "error"
		var amb *ambiguityError
		if errors.As(err, &amb) {
			reason = amb.reason
		} else {
			d.log.Error("incremental parse failed", "document_id", d.id, "path", d.opts.Path, "error", err)
		}
		d.fallback(lines, reason)
		return
	}
	if d.opts.Verify && !d.verify(lines) {
		return
	}
	d.stats.IncrementalParses++
	d.obs.ObserveParse("incremental", time.Since(start))
}

func (d *Document) fallback(lines []string, reason string) {
	d.stats.Fallbacks[reason]++
	d.obs.ObserveFallback(reason)
	d.log.Debug("falling back to full parse", "document_id", d.id, "path", d.opts.Path, "reason", reason)
	d.parseFull(lines)
}

// verify compares the incremental result with a fresh full parse and
// installs the full parse when they differ.
func (d *Document) verify(lines []string) bool {
	id := 0
	st := buildFull(lines, func() int { id++; return id })
	assignIDs(st.tasks)
	if st.root.Signature() == d.root.Signature() {
		return true
	}
	d.log.Error("incremental parse diverged from full parse", "document_id", d.id, "path", d.opts.Path)
	d.fallback(lines, "verify_mismatch")
	return false
}

func (d *Document) incremental(lines []string) error {
	oldLen, newLen := len(d.lines), len(lines)
	delta := newLen - oldLen
	if newLen == 0 {
		return ambiguous("empty")
	}
	if len(d.index) != oldLen || len(d.fenceBefore) != oldLen || len(d.classes) != oldLen {
		return ambiguous("parity_unknown")
	}

	windows := slices.Clone(d.dirty)
	if len(windows) > 1 && (delta != 0 || !gapsMatch(windows, d.lines, lines)) {
		// Per-window line shifts are unknown; treat the span as one edit.
		windows = []Range{{Start: windows[0].Start, End: windows[len(windows)-1].End}}
	}
	touched := 0
	for _, w := range windows {
		touched += w.Len()
	}
	if newLen >= largeEditMinLines && float64(touched) > largeEditFraction*float64(newLen) {
		return ambiguous("large_edit")
	}

	for _, w := range windows {
		toEOF, err := d.reparseWindow(lines, w, delta)
		if err != nil {
			return err
		}
		if toEOF {
			break
		}
	}

	d.lines = slices.Clone(lines)
	d.setTasks(d.tasks)
	d.dirty = nil
	d.version++
	return nil
}

// gapsMatch reports whether every line between consecutive windows is
// unchanged, which makes the windows independent of one another.
func gapsMatch(windows []Range, oldLines, newLines []string) bool {
	for i := 1; i < len(windows); i++ {
		for n := windows[i-1].End + 1; n < windows[i].Start; n++ {
			if n > len(oldLines) || n > len(newLines) || oldLines[n-1] != newLines[n-1] {
				return false
			}
		}
	}
	return true
}

// detached holds what an ancestor owned at or after the edit start.
type detached struct {
	sec      *doctree.Section
	children []*doctree.Section
	tasks    []*doctree.Task
	oldEnd   int
}

func detach(sec *doctree.Section, line int) detached {
	k := sort.Search(len(sec.Children), func(i int) bool { return sec.Children[i].StartLine >= line })
	t := sort.Search(len(sec.Tasks), func(i int) bool { return sec.Tasks[i].Line >= line })
	dt := detached{
		sec:      sec,
		children: slices.Clone(sec.Children[k:]),
		tasks:    slices.Clone(sec.Tasks[t:]),
		oldEnd:   sec.EndLine,
	}
	sec.Children = sec.Children[:k:k]
	sec.Tasks = sec.Tasks[:t:t]
	return dt
}

func firstTaskAt(tasks []*doctree.Task, line int) int {
	return sort.Search(len(tasks), func(i int) bool { return tasks[i].Line >= line })
}

// reparseWindow rebuilds the structure from w.Start up to the first line past
// w.End where the new parse rejoins the old one, then splices the untouched
// old tail back in. It reports whether the rebuild ran to the end of the
// document.
func (d *Document) reparseWindow(lines []string, w Range, delta int) (bool, error) {
	oldLen, newLen := len(d.lines), len(lines)
	s := w.Start
	e := min(w.End, newLen)
	if s-1 > newLen || s-1 > oldLen {
		return false, ambiguous("out_of_bounds")
	}
	oldE := e - delta
	if oldE < s-1 || oldE > oldLen {
		return false, ambiguous("delta_mismatch")
	}
	for i := s; i <= e; i++ {
		if parser.IsFence(lines[i-1]) {
			return false, ambiguous("fence_edit")
		}
	}
	for i := s; i <= oldE; i++ {
		if d.classes[i-1].Fence {
			return false, ambiguous("fence_edit")
		}
	}

	// Ancestors and fence parity just before the edit.
	stack := []*doctree.Section{d.root}
	inCode := false
	if s > 1 {
		stack = slices.Clone(d.index[s-2].Path())
		inCode = d.fenceBefore[s-2] != d.classes[s-2].Fence
		if stack[0] != d.root {
			return false, ambiguous("nesting")
		}
	}
	det := make([]detached, len(stack))
	for i, sec := range stack {
		det[i] = detach(sec, s)
	}

	b := parser.NewBuilder(stack, d.newSectionID)
	var midClasses []doctree.ClassifiedLine
	var midFence []bool
	resync := 0
	for j := s; j <= newLen; j++ {
		if j > e && d.rejoins(b, lines[j-1], j-delta, inCode) {
			resync = j
			break
		}
		midFence = append(midFence, inCode)
		var cl doctree.ClassifiedLine
		cl, inCode = parser.Classify(lines[j-1], j, inCode)
		midClasses = append(midClasses, cl)
		b.Step(cl)
	}

	prefixTasks := d.tasks[:firstTaskAt(d.tasks, s)]

	if resync == 0 {
		if err := b.Finish(newLen); err != nil {
			return false, err
		}
		d.index = slices.Concat(d.index[:s-1], b.Owners())
		d.classes = slices.Concat(d.classes[:s-1], midClasses)
		d.fenceBefore = slices.Concat(d.fenceBefore[:s-1], midFence)
		d.tasks = slices.Concat(prefixTasks, b.Tasks())
		d.lines = slices.Clone(lines)
		d.stats.TailRebuilds++
		d.recordChange(s, newLen, newLen)
		return true, nil
	}

	jo := resync - delta
	suffixTasks := d.tasks[firstTaskAt(d.tasks, jo):]
	depth := b.DepthAfterPop(d.classes[jo-1].Priority)
	if depth > len(det) {
		return false, ambiguous("nesting")
	}
	b.CloseAbove(depth, resync-1)

	for i, dt := range det {
		if i >= depth {
			// Closed before the re-sync line, so nothing of it may lie beyond.
			if len(dt.children) > 0 && dt.children[len(dt.children)-1].StartLine >= jo {
				return false, ambiguous("nesting")
			}
			continue
		}
		if b.Stack()[i] != dt.sec {
			return false, ambiguous("nesting")
		}
		for _, c := range dt.children {
			if c.StartLine >= jo {
				if err := shiftSubtree(c, delta); err != nil {
					return false, err
				}
				dt.sec.AddChild(c)
			}
		}
		for _, t := range dt.tasks {
			if t.Line >= jo {
				dt.sec.Tasks = append(dt.sec.Tasks, t)
			}
		}
		start := dt.sec.StartLine
		if dt.sec.IsRoot() {
			start = 1
		}
		if err := dt.sec.UpdateBounds(start, dt.oldEnd+delta); err != nil {
			return false, err
		}
	}
	if err := b.Err(); err != nil {
		return false, err
	}

	for _, t := range suffixTasks {
		t.Line += delta
	}
	tasks := slices.Concat(prefixTasks, b.Tasks(), suffixTasks)

	if delta == 0 {
		copy(d.index[s-1:], b.Owners())
		copy(d.classes[s-1:], midClasses)
		copy(d.fenceBefore[s-1:], midFence)
		copy(d.lines[s-1:], lines[s-1:resync-1])
	} else {
		tailClasses := slices.Clone(d.classes[jo-1:])
		for i := range tailClasses {
			tailClasses[i].Line += delta
		}
		d.index = slices.Concat(d.index[:s-1], b.Owners(), d.index[jo-1:])
		d.classes = slices.Concat(d.classes[:s-1], midClasses, tailClasses)
		d.fenceBefore = slices.Concat(d.fenceBefore[:s-1], midFence, d.fenceBefore[jo-1:])
		d.lines = slices.Concat(lines[:resync-1], d.lines[jo-1:])
	}
	d.tasks = tasks
	d.stats.Resyncs++
	d.recordChange(s, resync-1, newLen)
	return false, nil
}

// rejoins reports whether the parse may stop before new line j, whose old
// counterpart is line jo: same text, same fence parity, and the same open
// ancestors once the line's own pops are applied.
func (d *Document) rejoins(b *parser.Builder, raw string, jo int, inCode bool) bool {
	if jo < 1 || jo > len(d.lines) {
		return false
	}
	if raw != d.lines[jo-1] || inCode != d.fenceBefore[jo-1] {
		return false
	}
	priority := d.classes[jo-1].Priority
	old := []*doctree.Section{d.root}
	if jo > 1 {
		old = d.index[jo-2].Path()
	}
	n := parser.DepthAfterPop(old, priority)
	if n != b.DepthAfterPop(priority) {
		return false
	}
	cur := b.Stack()
	for i := 0; i < n; i++ {
		if cur[i] != old[i] {
			return false
		}
	}
	return true
}

func shiftSubtree(sec *doctree.Section, delta int) error {
	if delta == 0 {
		return nil
	}
	var err error
	sec.Walk(func(s *doctree.Section) bool {
		err = s.UpdateBounds(s.StartLine+delta, s.EndLine+delta)
		return err == nil
	})
	return err
}

func (d *Document) recordChange(start, end, lineCount int) {
	start = max(1, min(start, lineCount))
	end = max(start, min(end, lineCount))
	d.changes = insertRange(d.changes, Range{Start: start, End: end})
}
