// Package api provides the administrative HTTP surface for PhotoGate.
//
// It exposes pause/resume/publish-now/status operations on the publish
// scheduler plus a health check. All endpoints are idempotent except
// publish-now, which has an observable side effect only when the queue is
// non-empty and no send is already running.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/picstream/photogate/internal/album"
	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/publish"
)

// DefaultAddr is the default administrative listen address.
const DefaultAddr = ":8080"

// Server serves the administrative API.
type Server struct {
	scheduler  *publish.Scheduler
	aggregator *album.Aggregator
	httpServer *http.Server
}

// NewServer creates an API server over the scheduler and aggregator.
func NewServer(addr string, scheduler *publish.Scheduler, aggregator *album.Aggregator) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{scheduler: scheduler, aggregator: aggregator}

	mux := http.NewServeMux()
	mux.HandleFunc("/pause", s.pauseHandler)
	mux.HandleFunc("/resume", s.resumeHandler)
	mux.HandleFunc("/publish", s.publishHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("Server.Start: admin API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server.Start: admin API failed", "error", err)
		}
	}()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) pauseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	if err := s.scheduler.Pause(); err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("paused"))
}

func (s *Server) resumeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	if err := s.scheduler.Resume(); err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("resumed"))
}

func (s *Server) publishHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	err := s.scheduler.PublishNow()
	switch {
	case errors.Is(err, models.ErrSchedulerPaused), errors.Is(err, models.ErrSendInFlight), errors.Is(err, models.ErrEmptyQueue):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case err != nil:
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
	default:
		writeJSONResponse(w, http.StatusOK, models.Success("publishing"))
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	state, queueLength := s.scheduler.Status()
	status := models.StatusResponse{
		Paused:      state.IsPaused,
		QueueLength: queueLength,
	}
	if !state.NextSendAt.IsZero() {
		t := state.NextSendAt
		status.NextSendAt = &t
	}
	if s.aggregator != nil {
		status.ActiveAlbums = s.aggregator.ActiveCount()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"healthy": true,
		"time":    time.Now().UTC(),
	}))
}
