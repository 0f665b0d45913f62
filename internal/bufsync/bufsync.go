// Package bufsync turns semantic edits (toggle a task, change its attributes,
// replace a span of text) into line edits on a live buffer and reports them
// to the manager.
package bufsync

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/manager"
	"github.com/dgallion1/zortex/internal/parser"
)

var (
	// ErrReadOnly is returned for buffers whose source cannot be edited.
	ErrReadOnly = errors.New("buffer is read-only")
	// ErrConflict is returned when a task's line changed under the edit.
	ErrConflict = errors.New("task line changed concurrently")
)

var checkboxRe = regexp.MustCompile(`^(\s*[-*+]\s+\[)(.)(\])`)

// Editable is a buffer source that accepts line edits.
type Editable interface {
	manager.Source
	Line(n int) (string, error)
	SetLines(start, end int, repl []string) error
}

// Options configure a Sync.
type Options struct {
	// StampDone adds @done(YYYY-MM-DD) when a task is completed.
	StampDone bool
	Now       func() time.Time
}

// Edit describes the lines written by one operation, in post-edit coordinates.
type Edit struct {
	BufferID string   `json:"buffer_id"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Lines    []string `json:"lines"`
}

// Sync applies edits to buffers owned by a manager.
type Sync struct {
	m    *manager.Manager
	opts Options
}

func New(m *manager.Manager, opts Options) *Sync {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sync{m: m, opts: opts}
}

func (s *Sync) editable(bufferID string) (Editable, error) {
	src, err := s.m.Source(bufferID)
	if err != nil {
		return nil, err
	}
	ed, ok := src.(Editable)
	if !ok {
		return nil, fmt.Errorf("buffer %q: %w", bufferID, ErrReadOnly)
	}
	return ed, nil
}

// taskLine resolves a task to its current line and raw text.
func (s *Sync) taskLine(bufferID, taskID string) (Editable, doctree.Task, error) {
	ed, err := s.editable(bufferID)
	if err != nil {
		return nil, doctree.Task{}, err
	}
	task, err := s.m.Task(bufferID, taskID)
	if err != nil {
		return nil, doctree.Task{}, err
	}
	raw, err := ed.Line(task.Line)
	if err != nil {
		return nil, doctree.Task{}, err
	}
	if raw != task.Raw {
		return nil, doctree.Task{}, fmt.Errorf("task %q at line %d: %w", taskID, task.Line, ErrConflict)
	}
	return ed, task, nil
}

func (s *Sync) writeLine(ed Editable, bufferID string, n int, line string) (Edit, error) {
	if err := ed.SetLines(n, n, []string{line}); err != nil {
		return Edit{}, err
	}
	if err := s.m.MarkBufferDirty(bufferID, n, n); err != nil {
		return Edit{}, err
	}
	return Edit{BufferID: bufferID, Start: n, End: n, Lines: []string{line}}, nil
}

// ToggleTask flips a task between open and completed.
func (s *Sync) ToggleTask(bufferID, taskID string) (Edit, error) {
	ed, task, err := s.taskLine(bufferID, taskID)
	if err != nil {
		return Edit{}, err
	}
	line := toggleLine(task.Raw, !task.Completed)
	if !task.Completed && s.opts.StampDone {
		if _, ok := parser.AttributeSpans(line)["done"]; !ok {
			line = setAttribute(line, "done", s.opts.Now().Format(time.DateOnly))
		}
	}
	if task.Completed {
		line = removeAttribute(line, "done")
	}
	return s.writeLine(ed, bufferID, task.Line, line)
}

// UpdateAttributes sets and removes attributes on a task line. Removals run
// first; keys are applied in sorted order.
func (s *Sync) UpdateAttributes(bufferID, taskID string, set map[string]string, remove []string) (Edit, error) {
	ed, task, err := s.taskLine(bufferID, taskID)
	if err != nil {
		return Edit{}, err
	}
	line := task.Raw
	for _, key := range remove {
		line = removeAttribute(line, key)
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		line = setAttribute(line, k, set[k])
	}
	return s.writeLine(ed, bufferID, task.Line, line)
}

// ReplaceText replaces lines [start,end] of a buffer with lines. end may be
// start-1 to insert.
func (s *Sync) ReplaceText(bufferID string, start, end int, lines []string) (Edit, error) {
	ed, err := s.editable(bufferID)
	if err != nil {
		return Edit{}, err
	}
	if err := ed.SetLines(start, end, lines); err != nil {
		return Edit{}, err
	}
	last := start + len(lines) - 1
	if last < start {
		last = start
	}
	if err := s.m.MarkBufferDirty(bufferID, start, last); err != nil {
		return Edit{}, err
	}
	return Edit{BufferID: bufferID, Start: start, End: last, Lines: slices.Clone(lines)}, nil
}

func toggleLine(raw string, complete bool) string {
	m := checkboxRe.FindStringSubmatchIndex(raw)
	if m == nil {
		return raw
	}
	status := " "
	if complete {
		status = "x"
	}
	return raw[:m[4]] + status + raw[m[5]:]
}

func attributeToken(key, value string) string {
	if value == "" {
		return "@" + key
	}
	return "@" + key + "(" + value + ")"
}

func setAttribute(raw, key, value string) string {
	token := attributeToken(key, value)
	if sp, ok := parser.AttributeSpans(raw)[key]; ok {
		return raw[:sp[0]] + token + raw[sp[1]:]
	}
	return strings.TrimRight(raw, " \t") + " " + token
}

func removeAttribute(raw, key string) string {
	sp, ok := parser.AttributeSpans(raw)[key]
	if !ok {
		return raw
	}
	start := sp[0]
	for start > 0 && (raw[start-1] == ' ' || raw[start-1] == '\t') {
		start--
	}
	return raw[:start] + raw[sp[1]:]
}
