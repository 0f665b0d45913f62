package document

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/parser"
)

// ErrTaskNotFound is returned when no task carries the requested id.
var ErrTaskNotFound = errors.New("task not found")

// Source says where a document's lines come from.
type Source string

const (
	SourceBuffer Source = "buffer"
	SourceFile   Source = "file"
)

// LineSource supplies the current lines of a live document so reads can
// reparse before answering.
type LineSource interface {
	Lines() []string
}

// Observer receives parse telemetry.
type Observer interface {
	ObserveParse(kind string, d time.Duration)
	ObserveFallback(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveParse(string, time.Duration) {}
func (nopObserver) ObserveFallback(string)             {}

// Options configure a Document.
type Options struct {
	Source   Source
	Path     string
	Lines    LineSource
	Logger   *slog.Logger
	Observer Observer

	// Verify compares every incremental result against a full parse.
	Verify bool
}

// Stats counts parses since the document was created.
type Stats struct {
	FullParses        int            `json:"full_parses"`
	IncrementalParses int            `json:"incremental_parses"`
	Resyncs           int            `json:"resyncs"`
	TailRebuilds      int            `json:"tail_rebuilds"`
	Fallbacks         map[string]int `json:"fallbacks"`
}

// Document owns the lines of one note, the section tree built from them, a
// line→section index and the task registry. All methods are safe for
// concurrent use; mutations are serialized.
type Document struct {
	mu sync.Mutex

	id   string
	opts Options
	log  *slog.Logger
	obs  Observer

	lines       []string
	classes     []doctree.ClassifiedLine
	fenceBefore []bool
	root        *doctree.Section
	index       []*doctree.Section
	tasks       []*doctree.Task
	byID        map[string]*doctree.Task

	dirty    []Range
	dirtyLen int // source line count as of the last mark
	changes  []Range
	parsed   bool
	version  int
	mtime    time.Time
	nextID   int
	stats    Stats
}

// New creates an unparsed document.
func New(opts Options) *Document {
	if opts.Source == "" {
		opts.Source = SourceBuffer
	}
	d := &Document{
		id:   ulid.Make().String(),
		opts: opts,
		log:  opts.Logger,
		obs:  opts.Observer,
		root: doctree.NewRoot(0),
		byID: make(map[string]*doctree.Task),
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.obs == nil {
		d.obs = nopObserver{}
	}
	d.stats.Fallbacks = make(map[string]int)
	return d
}

// NewFromLines creates a document and fully parses lines.
func NewFromLines(lines []string, opts Options) *Document {
	d := New(opts)
	d.ParseFull(lines)
	return d
}

func (d *Document) ID() string { return d.id }

func (d *Document) Path() string { return d.opts.Path }

func (d *Document) Source() Source { return d.opts.Source }

func (d *Document) newSectionID() int {
	d.nextID++
	return d.nextID
}

// Version increments on every parse.
func (d *Document) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// MTime is the modification time of the file the document was read from.
func (d *Document) MTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtime
}

func (d *Document) SetMTime(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mtime = t
}

// MarkDirty records that lines [start,end] changed and await a reparse.
func (d *Document) MarkDirty(start, end int) error {
	r := Range{Start: start, End: end}
	if err := r.validate(); err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// The first changed line of an edit exists before it, or is one past the end.
	if d.parsed && start > len(d.lines)+1 {
		return fmt.Errorf("mark dirty [%d,%d] of %d lines: %w", start, end, len(d.lines), doctree.ErrInvalidRange)
	}
	if len(d.dirty) == 0 {
		d.dirtyLen = len(d.lines)
	}
	d.dirty = insertRange(d.dirty, r)
	return nil
}

// MarkEdited records an edit whose changed lines, in post-edit coordinates,
// are [start,end] and after which the source holds lineCount lines. Ranges
// still pending from earlier edits are moved by the change in line count.
func (d *Document) MarkEdited(start, end, lineCount int) error {
	r := Range{Start: start, End: end}
	if err := r.validate(); err != nil {
		return fmt.Errorf("mark edited: %w", err)
	}
	if !InBounds(start, end, lineCount) {
		return fmt.Errorf("mark edited [%d,%d] of %d lines: %w", start, end, lineCount, doctree.ErrInvalidRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dirty) == 0 {
		d.dirtyLen = len(d.lines)
	}
	delta := lineCount - d.dirtyLen
	d.dirtyLen = lineCount

	var shifted []Range
	for _, x := range d.dirty {
		if x.End >= start && delta != 0 {
			if x.Start >= start {
				x.Start = max(start, x.Start+delta)
			}
			x.End = max(x.Start, x.End+delta)
		}
		shifted = insertRange(shifted, x)
	}
	d.dirty = insertRange(shifted, r)
	return nil
}

// Dirty returns the pending dirty ranges.
func (d *Document) Dirty() []Range {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.dirty)
}

// IsDirty reports whether a reparse is pending.
func (d *Document) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dirty) > 0 || !d.parsed
}

// TakeChanges drains the line ranges changed by parses since the last call.
func (d *Document) TakeChanges() []Range {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.changes
	d.changes = nil
	return out
}

// Stats returns a copy of the parse counters.
func (d *Document) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Fallbacks = make(map[string]int, len(d.stats.Fallbacks))
	for k, v := range d.stats.Fallbacks {
		s.Fallbacks[k] = v
	}
	return s
}

// Refresh reparses from the attached line source if anything is pending.
func (d *Document) Refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
}

func (d *Document) ensureParsed() {
	if d.opts.Lines == nil {
		return
	}
	switch {
	case !d.parsed:
		d.parseFull(d.opts.Lines.Lines())
	case len(d.dirty) > 0:
		d.parseIncremental(d.opts.Lines.Lines())
	}
}

// LineCount returns the number of parsed lines.
func (d *Document) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	return len(d.lines)
}

// Lines returns a copy of the parsed lines.
func (d *Document) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	return slices.Clone(d.lines)
}

// Root returns the tree root. The tree is owned by the document and changes
// on every parse; callers must not keep it across edits.
func (d *Document) Root() *doctree.Section {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	return d.root
}

// View runs fn with the parsed tree and lines while holding the document lock.
func (d *Document) View(fn func(root *doctree.Section, lines []string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	fn(d.root, d.lines)
}

// SectionAtLine returns the innermost section containing line n.
func (d *Document) SectionAtLine(n int) (*doctree.Section, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	return d.sectionAt(n)
}

func (d *Document) sectionAt(n int) (*doctree.Section, error) {
	if n < 1 || n > len(d.index) {
		return nil, fmt.Errorf("line %d of %d: %w", n, len(d.index), doctree.ErrInvalidRange)
	}
	return d.index[n-1], nil
}

// Summary returns a detached description of the section containing line n.
func (d *Document) Summary(n int) (doctree.Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	sec, err := d.sectionAt(n)
	if err != nil {
		return doctree.Summary{}, err
	}
	return doctree.Summarize(sec), nil
}

// Breadcrumb returns the section texts from the outermost section down to sec.
func (d *Document) Breadcrumb(sec *doctree.Section) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sec.Breadcrumb()
}

// Task returns a copy of the task with the given id.
func (d *Document) Task(id string) (doctree.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	t, ok := d.byID[id]
	if !ok {
		return doctree.Task{}, fmt.Errorf("task %q: %w", id, ErrTaskNotFound)
	}
	return t.Clone(), nil
}

// Tasks returns copies of every task in line order.
func (d *Document) Tasks() []doctree.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()
	out := make([]doctree.Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// ParseFull discards all state and rebuilds it from lines.
func (d *Document) ParseFull(lines []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parseFull(lines)
}

func (d *Document) parseFull(lines []string) {
	start := time.Now()
	st := buildFull(lines, d.newSectionID)
	if st.err != nil {
		d.log.Error("full parse reported invalid bounds", "document_id", d.id, "path", d.opts.Path, "error", st.err)
	}

	d.lines = st.lines
	d.classes = st.classes
	d.fenceBefore = st.fenceBefore
	d.root = st.root
	d.index = st.index
	d.setTasks(st.tasks)
	d.dirty = nil
	d.parsed = true
	d.version++
	d.changes = insertRange(d.changes, Range{Start: 1, End: max(len(lines), 1)})
	d.stats.FullParses++
	d.obs.ObserveParse("full", time.Since(start))
}

type state struct {
	lines       []string
	classes     []doctree.ClassifiedLine
	fenceBefore []bool
	root        *doctree.Section
	index       []*doctree.Section
	tasks       []*doctree.Task
	err         error
}

func buildFull(lines []string, nextID func() int) state {
	st := state{
		lines:       slices.Clone(lines),
		classes:     make([]doctree.ClassifiedLine, len(lines)),
		fenceBefore: make([]bool, len(lines)),
		root:        doctree.NewRoot(len(lines)),
	}
	b := parser.NewBuilder([]*doctree.Section{st.root}, nextID)
	inCode := false
	for i, raw := range lines {
		st.fenceBefore[i] = inCode
		st.classes[i], inCode = parser.Classify(raw, i+1, inCode)
		b.Step(st.classes[i])
	}
	if err := b.Finish(len(lines)); err != nil {
		// Bounds only fail for impossible input; the tree is still complete.
		st.err = err
	}
	st.index = b.Owners()
	st.tasks = b.Tasks()
	return st
}
