package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/kb"
	"github.com/JakeFAU/jobkb-crawler/internal/metrics"
)

const maxChatBody = 64 << 10

// Loader loads the current knowledge base index.
type Loader func() (*kb.Index, error)

// Server wires HTTP handlers to the knowledge base index.
type Server struct {
	router chi.Router
	load   Loader
	index  atomic.Pointer[kb.Index]
	logger *zap.Logger
}

// NewServer constructs a Server and performs the first load. A failed first
// load is logged and leaves the server not ready until a reload succeeds.
func NewServer(load Loader, ids RequestIDSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{load: load, logger: logger}
	if err := s.reload(); err != nil {
		logger.Warn("knowledge base not loaded", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.withIndex(s.stats))
		r.Get("/categories/{category}", s.withIndex(s.categoryRecords))
		r.Get("/search", s.withIndex(s.search))
		r.Post("/chat", s.withIndex(s.chat))
		r.Post("/reload", s.reloadHandler)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) reload() error {
	ix, err := s.load()
	if err != nil {
		return err
	}
	s.index.Store(ix)
	s.logger.Info("knowledge base loaded", zap.Int("total_jobs", ix.TotalJobCount()))
	return nil
}

type indexHandler func(w http.ResponseWriter, r *http.Request, ix *kb.Index)

func (s *Server) withIndex(h indexHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ix := s.index.Load()
		if ix == nil {
			writeError(w, http.StatusServiceUnavailable, "knowledge base not loaded")
			return
		}
		h(w, r, ix)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.index.Load() == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statsResponse struct {
	TotalJobs      int       `json:"total_jobs"`
	ExtractionTime time.Time `json:"extraction_time"`
	Categories     []string  `json:"categories"`
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request, ix *kb.Index) {
	writeJSON(w, http.StatusOK, statsResponse{
		TotalJobs:      ix.TotalJobCount(),
		ExtractionTime: ix.Metadata().ExtractionTime,
		Categories:     ix.Categories(),
	})
}

type recordsResponse struct {
	Category string              `json:"category,omitempty"`
	Query    string              `json:"query,omitempty"`
	Records  []crawler.JobRecord `json:"records"`
}

func (s *Server) categoryRecords(w http.ResponseWriter, r *http.Request, ix *kb.Index) {
	category := chi.URLParam(r, "category")
	if !ix.HasCategory(category) {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}
	records := ix.RecordsByCategory(category)
	if records == nil {
		records = []crawler.JobRecord{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Category: category, Records: records})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, ix *kb.Index) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	records := ix.SearchRecords(strings.Fields(q))
	if records == nil {
		records = []crawler.JobRecord{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Query: q, Records: records})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request, ix *kb.Index) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": ix.Respond(req.Message)})
}

func (s *Server) reloadHandler(w http.ResponseWriter, _ *http.Request) {
	if err := s.reload(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, kb.ErrEmptyKnowledgeBase) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("knowledge base reload failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total_jobs": s.index.Load().TotalJobCount()})
}
