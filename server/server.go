package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"staywatch/models"
	"staywatch/processor"
	"staywatch/selectors"
	"staywatch/storage"
)

// Server is the operator-facing control API. It never serves end users;
// everything except /healthz and /metrics sits behind a shared token.
type Server struct {
	addr      string
	token     string
	processor *processor.Processor
	selectors *selectors.Cache
	ops       *storage.SQLiteStore
	httpSrv   *http.Server
}

func New(addr, token string, proc *processor.Processor, selCache *selectors.Cache, ops *storage.SQLiteStore) *Server {
	s := &Server{
		addr:      addr,
		token:     token,
		processor: proc,
		selectors: selCache,
		ops:       ops,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/cycle/run", s.handleCycleRun)
		r.Get("/cycle/snapshot", s.handleCycleSnapshot)
		r.Post("/cycle/pause", s.handleCyclePause)
		r.Post("/cycle/resume", s.handleCycleResume)
		r.Post("/selectors/invalidate", s.handleInvalidateSelectors)
		r.Post("/commands", s.handleEnqueueCommand)
	})

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	go func() {
		log.Printf("Control API listening on %s", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Control API error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.Header.Get("X-Control-Token") != s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCycleRun(w http.ResponseWriter, r *http.Request) {
	if s.processor.IsRunning() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cycle already running"})
		return
	}
	go func() {
		if err := s.processor.RunCycle(context.Background()); err != nil {
			log.Printf("API-triggered cycle error: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCycleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Snapshot())
}

func (s *Server) handleCyclePause(w http.ResponseWriter, r *http.Request) {
	s.processor.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleCycleResume(w http.ResponseWriter, r *http.Request) {
	s.processor.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type invalidateRequest struct {
	Platform string `json:"platform,omitempty"`
}

func (s *Server) handleInvalidateSelectors(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
	}

	var platforms []models.Platform
	if req.Platform != "" {
		p := models.Platform(req.Platform)
		if !p.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown platform"})
			return
		}
		platforms = append(platforms, p)
	}

	invalidated := s.selectors.Invalidate(platforms...)
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": invalidated})
}

type commandRequest struct {
	Command  string `json:"command"`
	Platform string `json:"platform,omitempty"`
}

// handleEnqueueCommand queues an operator command for the scheduler's
// poll loop. Useful when the caller wants durable delivery rather than
// the immediate endpoints above.
func (s *Server) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	if s.ops == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "command queue unavailable"})
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	cmd := models.CommandType(req.Command)
	switch cmd {
	case models.CmdCheckNow, models.CmdPause, models.CmdResume,
		models.CmdInvalidateSelectors, models.CmdPruneLogs:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown command"})
		return
	}

	var params *models.CommandParams
	if req.Platform != "" {
		params = &models.CommandParams{Platform: req.Platform}
	}
	if err := s.ops.EnqueueCommand(cmd, params); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
