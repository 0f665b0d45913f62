package document

import (
	"strings"

	"github.com/dgallion1/zortex/internal/doctree"
)

// Metadata is the header of a note: its article names and the tags listed
// directly under them.
type Metadata struct {
	Names []string `json:"names"`
	Tags  []string `json:"tags"`
}

// All returns names followed by tags.
func (m Metadata) All() []string {
	out := make([]string, 0, len(m.Names)+len(m.Tags))
	out = append(out, m.Names...)
	return append(out, m.Tags...)
}

// Metadata scans the leading block of article, tag and blank lines.
func (d *Document) Metadata() Metadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureParsed()

	m := Metadata{Names: []string{}, Tags: []string{}}
	for _, cl := range d.classes {
		switch {
		case cl.Type == doctree.TypeArticle:
			m.Names = append(m.Names, cl.Text)
		case cl.Tag != "":
			m.Tags = append(m.Tags, cl.Tag)
		case strings.TrimSpace(cl.Raw) == "":
		default:
			return m
		}
	}
	return m
}
