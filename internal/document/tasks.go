package document

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/dgallion1/zortex/internal/doctree"
)

// implicitID derives a task id from its text so that toggling or moving the
// task keeps the id while rewording it does not.
func implicitID(text string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(strings.Fields(text), " ")))
	return fmt.Sprintf("~%08x", h.Sum32())
}

// setTasks installs tasks (in line order) as the registry and assigns ids.
func (d *Document) setTasks(tasks []*doctree.Task) {
	d.tasks = tasks
	d.byID = assignIDs(tasks)
}

// assignIDs gives every task its id and returns them keyed by id.
// Explicit @id values win; duplicates get -2, -3, ... in document order.
func assignIDs(tasks []*doctree.Task) map[string]*doctree.Task {
	byID := make(map[string]*doctree.Task, len(tasks))
	counts := make(map[string]int, len(tasks))
	for _, t := range tasks {
		base := t.ExplicitID()
		if base == "" {
			base = implicitID(t.Text)
		}
		id := base
		for {
			counts[base]++
			if n := counts[base]; n > 1 {
				id = fmt.Sprintf("%s-%d", base, n)
			}
			if _, taken := byID[id]; !taken {
				break
			}
		}
		t.ID = id
		byID[id] = t
	}
	return byID
}
