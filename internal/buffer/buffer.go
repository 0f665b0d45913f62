// Package buffer holds the text of notes open in a remote editor.
package buffer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dgallion1/zortex/internal/doctree"
)

// Buffer is a mutable list of lines. It is safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	path  string
	lines []string
}

// New creates a buffer for path holding a copy of lines.
func New(path string, lines []string) *Buffer {
	return &Buffer{path: path, lines: slices.Clone(lines)}
}

func (b *Buffer) Path() string { return b.path }

// Lines returns a copy of the current lines.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.lines)
}

// Line returns line n (1-based).
func (b *Buffer) Line(n int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n < 1 || n > len(b.lines) {
		return "", fmt.Errorf("line %d of %d: %w", n, len(b.lines), doctree.ErrInvalidRange)
	}
	return b.lines[n-1], nil
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// SetLines replaces lines [start,end] with repl. end may be start-1 to
// insert before start without removing anything.
func (b *Buffer) SetLines(start, end int, repl []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if start < 1 || start > len(b.lines)+1 || end < start-1 || end > len(b.lines) {
		return fmt.Errorf("set lines [%d,%d] of %d: %w", start, end, len(b.lines), doctree.ErrInvalidRange)
	}
	b.lines = slices.Concat(b.lines[:start-1], repl, b.lines[end:])
	return nil
}
