package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/dgallion1/zortex/internal/buffer"
	"github.com/dgallion1/zortex/internal/bufsync"
	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/document"
	"github.com/dgallion1/zortex/internal/manager"
	"github.com/dgallion1/zortex/internal/outline"
	"github.com/dgallion1/zortex/internal/parser"
)

type openBufferRequest struct {
	ID    string   `json:"id"`
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
}

type openBufferResponse struct {
	BufferID   string `json:"buffer_id"`
	DocumentID string `json:"document_id"`
	Lines      int    `json:"lines"`
}

type editRequest struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Lines []string `json:"lines"`
}

type attributesRequest struct {
	Set    map[string]string `json:"set"`
	Remove []string          `json:"remove"`
}

type sectionResponse struct {
	BufferID string          `json:"buffer_id"`
	Line     int             `json:"line"`
	Section  doctree.Summary `json:"section"`
}

// writeError maps engine errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, doctree.ErrInvalidRange):
		code = http.StatusBadRequest
	case errors.Is(err, manager.ErrBufferNotFound),
		errors.Is(err, document.ErrTaskNotFound),
		errors.Is(err, manager.ErrUnavailable):
		code = http.StatusNotFound
	case errors.Is(err, bufsync.ErrConflict), errors.Is(err, bufsync.ErrReadOnly):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	jsonError(w, err.Error(), code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func lineParam(w http.ResponseWriter, raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		jsonError(w, "invalid line "+strconv.Quote(raw), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (s *Server) handleOpenBuffer(w http.ResponseWriter, r *http.Request) {
	var req openBufferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = ulid.Make().String()
	}

	doc, err := s.mgr.OpenBuffer(id, buffer.New(req.Path, req.Lines))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("buffer opened", "buffer_id", id, "path", req.Path, "lines", len(req.Lines))
	writeJSON(w, http.StatusCreated, openBufferResponse{
		BufferID:   id,
		DocumentID: doc.ID(),
		Lines:      len(req.Lines),
	})
}

func (s *Server) handleCloseBuffer(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.CloseBuffer(chi.URLParam(r, "bufferID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	edit, err := s.sync.ReplaceText(chi.URLParam(r, "bufferID"), req.Start, req.End, req.Lines)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edit)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bufferID")
	if err := s.mgr.Flush(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.mgr.Buffer(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"version": doc.Version()})
}

func (s *Server) handleBufferSection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bufferID")
	n, ok := lineParam(w, chi.URLParam(r, "line"))
	if !ok {
		return
	}
	sum, err := s.mgr.SectionAt(id, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sectionResponse{BufferID: id, Line: n, Section: sum})
}

func (s *Server) handleBufferSectionHTML(w http.ResponseWriter, r *http.Request) {
	n, ok := lineParam(w, chi.URLParam(r, "line"))
	if !ok {
		return
	}
	doc, err := s.mgr.Buffer(chi.URLParam(r, "bufferID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var html string
	doc.View(func(root *doctree.Section, lines []string) {
		if n < 1 || n > len(lines) {
			err = doctree.ErrInvalidRange
			return
		}
		html, err = parser.RenderSection(root.Innermost(n), lines)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (s *Server) handleBufferTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.mgr.Tasks(chi.URLParam(r, "bufferID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("open") == "true" {
		open := tasks[:0]
		for _, t := range tasks {
			if !t.Completed {
				open = append(open, t)
			}
		}
		tasks = open
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleBufferTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.mgr.Task(chi.URLParam(r, "bufferID"), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	edit, err := s.sync.ToggleTask(chi.URLParam(r, "bufferID"), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edit)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req attributesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	edit, err := s.sync.UpdateAttributes(chi.URLParam(r, "bufferID"), chi.URLParam(r, "taskID"), req.Set, req.Remove)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edit)
}

func (s *Server) handleBufferOutline(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Buffer(chi.URLParam(r, "bufferID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg := outline.DefaultConfig()
	if v := r.URL.Query().Get("depth"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			cfg.MaxDepth = d
		}
	}
	var entries []outline.Entry
	doc.View(func(root *doctree.Section, lines []string) {
		entries = outline.Build(root, lines, cfg)
	})
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleBufferMetadata(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Buffer(chi.URLParam(r, "bufferID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Metadata())
}

func (s *Server) handleBufferStats(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Buffer(chi.URLParam(r, "bufferID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID(),
		"version":     doc.Version(),
		"dirty":       doc.IsDirty(),
		"parses":      doc.Stats(),
	})
}
