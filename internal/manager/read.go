package manager

import (
	"github.com/dgallion1/zortex/internal/doctree"
)

// SectionAt describes the section holding line n of buffer id.
func (m *Manager) SectionAt(id string, n int) (doctree.Summary, error) {
	l, err := m.buffer(id)
	if err != nil {
		return doctree.Summary{}, err
	}
	return l.doc.Summary(n)
}

// Breadcrumb returns the section path of line n of buffer id.
func (m *Manager) Breadcrumb(id string, n int) ([]string, error) {
	sum, err := m.SectionAt(id, n)
	if err != nil {
		return nil, err
	}
	return sum.Breadcrumb, nil
}

// Task looks up a task of buffer id.
func (m *Manager) Task(id, taskID string) (doctree.Task, error) {
	l, err := m.buffer(id)
	if err != nil {
		return doctree.Task{}, err
	}
	return l.doc.Task(taskID)
}

// Tasks lists the tasks of buffer id in line order.
func (m *Manager) Tasks(id string) ([]doctree.Task, error) {
	l, err := m.buffer(id)
	if err != nil {
		return nil, err
	}
	return l.doc.Tasks(), nil
}

// FileSectionAt describes the section holding line n of the file at path.
func (m *Manager) FileSectionAt(path string, n int) (doctree.Summary, error) {
	doc, err := m.GetFile(path)
	if err != nil {
		return doctree.Summary{}, err
	}
	return doc.Summary(n)
}

// FileTasks lists the tasks of the file at path.
func (m *Manager) FileTasks(path string) ([]doctree.Task, error) {
	doc, err := m.GetFile(path)
	if err != nil {
		return nil, err
	}
	return doc.Tasks(), nil
}
