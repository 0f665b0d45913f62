package parser

import (
	"bytes"
	"strings"

	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.TaskList, extension.Strikethrough))

// RenderSection renders the lines spanned by sec as HTML. Article markers
// have no markdown meaning, so article titles are emitted as a top-level
// heading before rendering.
func RenderSection(sec *doctree.Section, lines []string) (string, error) {
	start, end := sec.StartLine, sec.EndLine
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", nil
	}

	var src strings.Builder
	for i := start; i <= end; i++ {
		line := lines[i-1]
		if title, ok := strings.CutPrefix(line, "@@"); ok && strings.TrimSpace(title) != "" {
			line = "# " + strings.TrimSpace(title)
		}
		src.WriteString(line)
		src.WriteByte('\n')
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(src.String()), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
