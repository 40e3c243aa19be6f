// Package api serves the run status and the live record feed over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"Go2FlowLabel/internal/logger"

	"github.com/gorilla/mux"
)

// Server is the status HTTP server.
type Server struct {
	status *Status
	feed   *Feed
	server *http.Server
}

// NewServer wires the routes on addr.
func NewServer(addr string, status *Status, feed *Feed) *Server {
	s := &Server{status: status, feed: feed}
	s.server = &http.Server{Addr: addr, Handler: s.Router()}
	return s
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/status", s.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/runs", s.runsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/windows/{topology}", s.windowHandler).Methods(http.MethodGet)
	if s.feed != nil {
		r.Handle("/api/v1/live", s.feed).Methods(http.MethodGet)
	}
	return r
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		logger.APILog.Infof("API server starting on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.APILog.Errorf("Could not listen on %s: %v", s.server.Addr, err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.APILog.Info("API server shutting down...")
	return s.server.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.View())
}

func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.View().Completed)
}

func (s *Server) windowHandler(w http.ResponseWriter, r *http.Request) {
	topology := mux.Vars(r)["topology"]
	view, ok := s.status.Window(topology)
	if !ok {
		http.Error(w, "no window published for topology "+topology, http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to marshal response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
