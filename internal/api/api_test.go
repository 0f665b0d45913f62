package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/zortex/internal/bufsync"
	"github.com/dgallion1/zortex/internal/config"
	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/document"
	"github.com/dgallion1/zortex/internal/manager"
	"github.com/dgallion1/zortex/internal/metrics"
)

var note = []string{
	"@@Project",
	"@work",
	"",
	"# Plan",
	"Intro text",
	"## Next",
	"- [ ] ship it @id(ship)",
	"- [x] write docs",
}

type testServer struct {
	*httptest.Server
	mgr *manager.Manager
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cfg := config.Defaults()
	cfg.NotesDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	mgr, err := manager.New(manager.Options{
		CacheCapacity: cfg.CacheCapacity,
		Debounce:      50 * time.Millisecond,
		Logger:        log,
		Observer:      m,
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	srv := NewServer(mgr, bufsync.New(mgr, bufsync.Options{}), m, reg, log, cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, mgr: mgr}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) open(t *testing.T, id string, lines []string) openBufferResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/buffers", openBufferRequest{ID: id, Path: "", Lines: lines})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[openBufferResponse](t, resp)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequiredWhenKeySet(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.APIKey = "secret" })

	resp := ts.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	ok, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	// Health stays public.
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).StatusCode)
}

func TestOpenBufferGeneratesID(t *testing.T) {
	ts := newTestServer(t, nil)
	out := ts.open(t, "", note)
	assert.NotEmpty(t, out.BufferID)
	assert.NotEmpty(t, out.DocumentID)
	assert.Equal(t, len(note), out.Lines)
	assert.Equal(t, 1, ts.mgr.Stats().LiveBuffers)
}

func TestSectionAndBreadcrumb(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	resp := ts.do(t, http.MethodGet, "/api/buffers/b1/sections/7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[sectionResponse](t, resp)
	assert.Equal(t, 7, out.Line)
	assert.Equal(t, doctree.TypeHeading, out.Section.Type)
	assert.Equal(t, "Next", out.Section.Text)
	assert.Equal(t, []string{"Project", "Plan", "Next"}, out.Section.Breadcrumb)
	assert.Equal(t, []string{"ship", "~"}, prefixes(out.Section.TaskIDs))
}

func prefixes(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if strings.HasPrefix(id, "~") {
			out[i] = "~"
		} else {
			out[i] = id
		}
	}
	return out
}

func TestSectionErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/buffers/b1/sections/99", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/buffers/b1/sections/abc", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/buffers/nope/sections/1", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/buffers/b1/tasks/missing", nil).StatusCode)
}

func TestSectionHTML(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	resp := ts.do(t, http.MethodGet, "/api/buffers/b1/sections/6/html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<h2>Next</h2>")
	assert.NotContains(t, string(body), "Intro")
}

func TestToggleAndFlush(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	resp := ts.do(t, http.MethodPost, "/api/buffers/b1/tasks/ship/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edit := decode[bufsync.Edit](t, resp)
	assert.Equal(t, 7, edit.Start)
	assert.Equal(t, []string{"- [x] ship it @id(ship)"}, edit.Lines)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/buffers/b1/flush", nil).StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/buffers/b1/tasks/ship", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := decode[doctree.Task](t, resp)
	assert.True(t, task.Completed)

	resp = ts.do(t, http.MethodGet, "/api/buffers/b1/tasks?open=true", nil)
	out := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 0, out.Count)
}

func TestUpdateAttributes(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	resp := ts.do(t, http.MethodPatch, "/api/buffers/b1/tasks/ship", attributesRequest{Set: map[string]string{"due": "2026-11-01"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/buffers/b1/tasks/ship", nil)
	task := decode[doctree.Task](t, resp)
	assert.Equal(t, "2026-11-01", task.Attributes["due"])
}

func TestEditReparsesOnRead(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	resp := ts.do(t, http.MethodPost, "/api/buffers/b1/edits", editRequest{Start: 6, End: 6, Lines: []string{"## Later"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/buffers/b1/sections/7", nil)
	out := decode[sectionResponse](t, resp)
	assert.Equal(t, "Later", out.Section.Text)

	bad := ts.do(t, http.MethodPost, "/api/buffers/b1/edits", editRequest{Start: 40, End: 41, Lines: []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestOutlineAndMetadata(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	resp := ts.do(t, http.MethodGet, "/api/buffers/b1/outline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Positive(t, out.Count)

	resp = ts.do(t, http.MethodGet, "/api/buffers/b1/metadata", nil)
	meta := decode[document.Metadata](t, resp)
	assert.Equal(t, []string{"Project"}, meta.Names)
	assert.Equal(t, []string{"work"}, meta.Tags)
}

func TestCloseBuffer(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/buffers/b1", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/buffers/b1", nil).StatusCode)
}

func TestFileEndpoints(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, func(c *config.Config) { c.NotesDir = dir })
	path := filepath.Join(dir, "project.zortex")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(note, "\n")+"\n"), 0o644))

	resp := ts.do(t, http.MethodGet, "/api/files/sections?path="+path+"&line=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sec := decode[struct {
		Section doctree.Summary `json:"section"`
	}](t, resp)
	assert.Equal(t, "Plan", sec.Section.Text)

	resp = ts.do(t, http.MethodGet, "/api/files/tasks?path="+path, nil)
	tasks := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, tasks.Count)

	missing := ts.do(t, http.MethodGet, "/api/files/tasks?path="+filepath.Join(dir, "gone.zortex"), nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/files/tasks", nil).StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/notes", nil)
	notes := decode[struct {
		Notes []noteSummary `json:"notes"`
	}](t, resp)
	require.Len(t, notes.Notes, 1)
	assert.Equal(t, []string{"Project"}, notes.Notes[0].Metadata.Names)
	assert.Equal(t, 1, notes.Notes[0].OpenTasks)
}

func TestEventsWebsocket(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?buffer=b1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.mgr.Stats().Subscribers == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/buffers/b1/tasks/ship/toggle", nil).StatusCode)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev manager.ChangeEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "b1", ev.BufferID)
	assert.NotEmpty(t, ev.ChangedRanges)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.open(t, "b1", note)
	ts.do(t, http.MethodGet, "/api/buffers/b1/sections/1", nil)

	resp := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "zortex_parses_total")
	assert.Contains(t, string(body), `route="/api/buffers/{bufferID}/sections/{line}"`)
}

func TestFileEndpointsStayInsideNotesDir(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	ts := newTestServer(t, func(c *config.Config) { c.NotesDir = dir })

	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("- [ ] rotate key hunter2\n"), 0o644))
	inside := filepath.Join(dir, "ok.zortex")
	require.NoError(t, os.WriteFile(inside, []byte("# A\n- [ ] fine\n"), 0o644))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(secret, link))

	for _, p := range []string{
		secret,
		"../" + filepath.Base(outside) + "/secret.txt",
		link,
	} {
		resp := ts.do(t, http.MethodGet, "/api/files/tasks?path="+url.QueryEscape(p), nil)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, p)
		assert.NotContains(t, string(body), "hunter2", p)

		resp = ts.do(t, http.MethodGet, "/api/files/sections?line=1&path="+url.QueryEscape(p), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, p)
	}

	resp := ts.do(t, http.MethodGet, "/api/notes", nil)
	notes := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 1, notes.Count, "symlinked note must not be scanned")

	// Relative paths resolve against the notes directory.
	resp = ts.do(t, http.MethodGet, "/api/files/tasks?path=ok.zortex", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 1, out.Count)
}

func TestResolveNotePath(t *testing.T) {
	root := t.TempDir()
	got, err := resolveNotePath(root, "sub/note.zortex")
	require.NoError(t, err)
	assert.Equal(t, "note.zortex", filepath.Base(got))

	_, err = resolveNotePath(root, "../escape.zortex")
	assert.ErrorIs(t, err, errOutsideNotes)
	_, err = resolveNotePath(root, "/etc/passwd")
	assert.ErrorIs(t, err, errOutsideNotes)
}
