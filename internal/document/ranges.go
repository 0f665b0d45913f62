package document

import (
	"fmt"

	"github.com/dgallion1/zortex/internal/doctree"
)

// Range is an inclusive, 1-based line interval.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines in r.
func (r Range) Len() int { return r.End - r.Start + 1 }

func (r Range) validate() error {
	if r.Start < 1 || r.End < r.Start {
		return fmt.Errorf("range [%d,%d]: %w", r.Start, r.End, doctree.ErrInvalidRange)
	}
	return nil
}

// InBounds reports whether [start,end] addresses lines of a source holding
// lineCount lines after an edit. [lineCount+1, lineCount+1] marks a deletion
// at the end of the source.
func InBounds(start, end, lineCount int) bool {
	if start < 1 || end < start {
		return false
	}
	if start == lineCount+1 && end == start {
		return true
	}
	return end <= lineCount
}

// insertRange adds r to a sorted, non-overlapping set, merging any interval
// that overlaps or touches it.
func insertRange(rs []Range, r Range) []Range {
	out := make([]Range, 0, len(rs)+1)
	placed := false
	for _, x := range rs {
		switch {
		case placed || x.End+1 < r.Start:
			out = append(out, x)
		case r.End+1 < x.Start:
			out = append(out, r, x)
			placed = true
		default:
			r.Start = min(r.Start, x.Start)
			r.End = max(r.End, x.End)
		}
	}
	if !placed {
		out = append(out, r)
	}
	return out
}
