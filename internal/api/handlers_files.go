package api

import (
	"net/http"
	"sort"

	"github.com/dgallion1/zortex/internal/document"
)

type noteSummary struct {
	Path      string            `json:"path"`
	Metadata  document.Metadata `json:"metadata"`
	Tasks     int               `json:"tasks"`
	OpenTasks int               `json:"open_tasks"`
}

// notePath confines a requested path to the notes directory. Paths outside
// it are reported as not found.
func (s *Server) notePath(w http.ResponseWriter, path string) (string, bool) {
	abs, err := resolveNotePath(s.cfg.NotesDir, path)
	if err != nil {
		s.log.Warn("rejected note path", "path", path, "error", err)
		jsonError(w, "note not found", http.StatusNotFound)
		return "", false
	}
	return abs, true
}

func (s *Server) handleFileSection(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}
	n, ok := lineParam(w, r.URL.Query().Get("line"))
	if !ok {
		return
	}
	abs, ok := s.notePath(w, path)
	if !ok {
		return
	}
	sum, err := s.mgr.FileSectionAt(abs, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "line": n, "section": sum})
}

func (s *Server) handleFileTasks(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}
	abs, ok := s.notePath(w, path)
	if !ok {
		return
	}
	tasks, err := s.mgr.FileTasks(abs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "tasks": tasks, "count": len(tasks)})
}

// handleListNotes scans the notes directory and lists each note's header.
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	var notes []noteSummary
	stats, err := s.mgr.Scan(r.Context(), s.cfg.NotesDir, func(path string, doc *document.Document) error {
		tasks := doc.Tasks()
		ns := noteSummary{Path: path, Metadata: doc.Metadata(), Tasks: len(tasks)}
		for _, t := range tasks {
			if !t.Completed {
				ns.OpenTasks++
			}
		}
		notes = append(notes, ns)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Path < notes[j].Path })
	if notes == nil {
		notes = []noteSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes":       notes,
		"count":       len(notes),
		"unavailable": stats.Unavailable,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Stats())
}
