package parser

import (
	"regexp"
	"strings"

	"github.com/dgallion1/zortex/internal/doctree"
)

var (
	headingRe = regexp.MustCompile(`^(#+)\s+(\S.*)$`)
	boldRe    = regexp.MustCompile(`^\*\*(.+)\*\*:?$`)
	labelRe   = regexp.MustCompile(`^([^\s:][^:]*):$`)
	taskRe    = regexp.MustCompile(`^(\s*)[-*+]\s+\[(.)\](?:\s+(.*))?$`)
	listRe    = regexp.MustCompile(`^\s*[-*+]\s`)
	attrRe    = regexp.MustCompile(`(^|\s)@([A-Za-z_][\w-]*)(?:\(([^)]*)\))?`)
)

// IsFence reports whether raw opens or closes a fenced code block.
func IsFence(raw string) bool {
	t := strings.TrimSpace(raw)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// Classify tags one line. inCode is the fenced-block state before the line;
// the second return value is the state after it.
func Classify(raw string, line int, inCode bool) (doctree.ClassifiedLine, bool) {
	cl := doctree.ClassifiedLine{
		Line:     line,
		Type:     doctree.TypeText,
		Priority: doctree.PriorityText,
		Raw:      raw,
		InCode:   inCode,
	}

	if IsFence(raw) {
		cl.Fence = true
		cl.InCode = true
		return cl, !inCode
	}
	if inCode {
		return cl, inCode
	}

	trimmed := strings.TrimRight(raw, " \t")

	if title, ok := strings.CutPrefix(trimmed, "@@"); ok && strings.TrimSpace(title) != "" {
		cl.Type = doctree.TypeArticle
		cl.Priority = doctree.PriorityArticle
		cl.Text = strings.TrimSpace(title)
		return cl, inCode
	}

	if m := headingRe.FindStringSubmatch(trimmed); m != nil {
		cl.Type = doctree.TypeHeading
		cl.Level = len(m[1])
		cl.Priority = doctree.HeadingPriority(cl.Level)
		cl.Text, cl.Attributes = SplitAttributes(m[2])
		return cl, inCode
	}

	if m := boldRe.FindStringSubmatch(trimmed); m != nil && !strings.Contains(m[1], "**") && strings.TrimSpace(m[1]) != "" {
		cl.Type = doctree.TypeBoldHeading
		cl.Priority = doctree.PriorityBoldHeading
		cl.Text, cl.Attributes = SplitAttributes(m[1])
		return cl, inCode
	}

	if task := parseTask(raw, line); task != nil {
		cl.Task = task
		cl.Text = task.Text
		cl.Attributes = task.Attributes
		return cl, inCode
	}

	if m := labelRe.FindStringSubmatch(trimmed); m != nil && !listRe.MatchString(trimmed) && !strings.HasPrefix(trimmed, "@") {
		cl.Type = doctree.TypeLabel
		cl.Priority = doctree.PriorityLabel
		cl.Text, cl.Attributes = SplitAttributes(m[1])
		return cl, inCode
	}

	if tag, ok := strings.CutPrefix(trimmed, "@"); ok && tag != "" && !strings.HasPrefix(tag, "@") && !strings.ContainsAny(tag[:1], " \t") {
		cl.Tag = strings.TrimSpace(tag)
	}
	cl.Text = strings.TrimSpace(raw)
	return cl, inCode
}

// ClassifyAll classifies lines with a fresh fence state.
func ClassifyAll(lines []string) []doctree.ClassifiedLine {
	out := make([]doctree.ClassifiedLine, len(lines))
	inCode := false
	for i, raw := range lines {
		out[i], inCode = Classify(raw, i+1, inCode)
	}
	return out
}

func parseTask(raw string, line int) *doctree.Task {
	m := taskRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	text, attrs := SplitAttributes(m[3])
	return &doctree.Task{
		Line:       line,
		Status:     m[2],
		Completed:  m[2] == "x" || m[2] == "X",
		Text:       text,
		Raw:        raw,
		Attributes: attrs,
	}
}

// SplitAttributes extracts @key(value) and bare @key attributes from s and
// returns the remaining text with whitespace collapsed.
func SplitAttributes(s string) (string, map[string]string) {
	matches := attrRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return strings.Join(strings.Fields(s), " "), nil
	}
	attrs := make(map[string]string, len(matches))
	var rest strings.Builder
	prev := 0
	for _, m := range matches {
		rest.WriteString(s[prev:m[0]])
		rest.WriteString(" ")
		key := s[m[4]:m[5]]
		val := ""
		if m[6] >= 0 {
			val = s[m[6]:m[7]]
		}
		attrs[key] = val
		prev = m[1]
	}
	rest.WriteString(s[prev:])
	return strings.Join(strings.Fields(rest.String()), " "), attrs
}

// AttributeSpans returns the byte spans of every attribute token in s, keyed
// by attribute name. Spans exclude the leading whitespace.
func AttributeSpans(s string) map[string][2]int {
	spans := make(map[string][2]int)
	for _, m := range attrRe.FindAllStringSubmatchIndex(s, -1) {
		spans[s[m[4]:m[5]]] = [2]int{m[4] - 1, m[1]}
	}
	return spans
}
