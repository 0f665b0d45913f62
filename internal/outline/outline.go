package outline

import (
	"strings"

	"github.com/dgallion1/zortex/internal/doctree"
)

// Config controls which sections appear in an outline.
type Config struct {
	MaxDepth  int // Deepest section nesting to include; 0 means no limit.
	MinTokens int // Skip sections whose own body is smaller than this.
}

// DefaultConfig includes every section.
func DefaultConfig() Config {
	return Config{}
}

// Entry is one section of a document, flattened for search and completion.
type Entry struct {
	SectionID  int                 `json:"section_id"`
	Type       doctree.SectionType `json:"type"`
	Level      int                 `json:"level,omitempty"`
	Text       string              `json:"text"`
	Breadcrumb []string            `json:"breadcrumb"`
	Depth      int                 `json:"depth"`
	StartLine  int                 `json:"start_line"`
	EndLine    int                 `json:"end_line"`
	Tokens     int                 `json:"tokens"`
	Tasks      int                 `json:"tasks"`
	OpenTasks  int                 `json:"open_tasks"`
}

// Build walks the tree under root in document order. lines are the lines
// the tree was parsed from and feed the token estimates.
func Build(root *doctree.Section, lines []string, cfg Config) []Entry {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	var entries []Entry
	for _, child := range root.Children {
		entries = walkSection(child, nil, 1, lines, cfg, entries)
	}
	return entries
}

func walkSection(sec *doctree.Section, breadcrumb []string, depth int, lines []string, cfg Config, entries []Entry) []Entry {
	if cfg.MaxDepth > 0 && depth > cfg.MaxDepth {
		return entries
	}
	var bc []string
	bc = append(bc, breadcrumb...)
	bc = append(bc, sec.Text)

	tokens := EstimateTokens(Body(sec, lines))
	if tokens >= cfg.MinTokens {
		open := 0
		for _, t := range sec.Tasks {
			if !t.Completed {
				open++
			}
		}
		entries = append(entries, Entry{
			SectionID:  sec.ID,
			Type:       sec.Type,
			Level:      sec.Level,
			Text:       sec.Text,
			Breadcrumb: copyBreadcrumb(bc),
			Depth:      depth,
			StartLine:  sec.StartLine,
			EndLine:    sec.EndLine,
			Tokens:     tokens,
			Tasks:      len(sec.Tasks),
			OpenTasks:  open,
		})
	}

	for _, child := range sec.Children {
		entries = walkSection(child, bc, depth+1, lines, cfg, entries)
	}
	return entries
}

// Body returns the lines a section owns directly: everything after its
// header line that no child section covers.
func Body(sec *doctree.Section, lines []string) string {
	first := sec.StartLine + 1
	if sec.IsRoot() {
		first = 1
	}
	var b strings.Builder
	next := 0
	for n := first; n <= sec.EndLine && n <= len(lines); n++ {
		if next < len(sec.Children) && n >= sec.Children[next].StartLine {
			n = sec.Children[next].EndLine
			next++
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(lines[n-1])
	}
	return b.String()
}

func copyBreadcrumb(bc []string) []string {
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
