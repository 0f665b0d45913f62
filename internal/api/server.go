package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/zortex/internal/bufsync"
	"github.com/dgallion1/zortex/internal/config"
	"github.com/dgallion1/zortex/internal/manager"
	"github.com/dgallion1/zortex/internal/metrics"
)

// Server is the HTTP API server for zortexd.
type Server struct {
	router   chi.Router
	mgr      *manager.Manager
	sync     *bufsync.Sync
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. m and gatherer may be
// nil, in which case requests are not instrumented and /metrics is absent.
func NewServer(mgr *manager.Manager, sync *bufsync.Sync, m *metrics.Metrics, gatherer prometheus.Gatherer, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		mgr:      mgr,
		sync:     sync,
		metrics:  m,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
		cfg: cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log, s.metrics))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}
		r.Use(middleware.RequestSize(s.cfg.MaxBodyBytes))

		r.Post("/api/buffers", s.handleOpenBuffer)
		r.Route("/api/buffers/{bufferID}", func(r chi.Router) {
			r.Delete("/", s.handleCloseBuffer)
			r.Post("/edits", s.handleEdit)
			r.Post("/flush", s.handleFlush)
			r.Get("/sections/{line}", s.handleBufferSection)
			r.Get("/sections/{line}/html", s.handleBufferSectionHTML)
			r.Get("/tasks", s.handleBufferTasks)
			r.Get("/tasks/{taskID}", s.handleBufferTask)
			r.Post("/tasks/{taskID}/toggle", s.handleToggleTask)
			r.Patch("/tasks/{taskID}", s.handleUpdateTask)
			r.Get("/outline", s.handleBufferOutline)
			r.Get("/metadata", s.handleBufferMetadata)
			r.Get("/stats", s.handleBufferStats)
		})

		r.Get("/api/files/sections", s.handleFileSection)
		r.Get("/api/files/tasks", s.handleFileTasks)
		r.Get("/api/notes", s.handleListNotes)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/events", s.handleEvents)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
