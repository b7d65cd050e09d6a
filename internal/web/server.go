// Package web serves the bp-sensor status page, its JSON form, and a health
// probe for the service manager.
package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sweeney/bp-sensor/internal/logic"
	"github.com/sweeney/bp-sensor/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /reading.json", s.handleReading)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleReading returns the last measurement sent, or 204 before the first.
func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	data := status.FormatReading(s.tracker.Snapshot())
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleHealth reports 503 while the radio is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	loop := s.tracker.Snapshot().Loop
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	switch {
	case loop.StartErr != nil:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "radio: %v\n", loop.StartErr)
	case loop.Link == logic.LinkInitializing:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "radio: initializing")
	default:
		fmt.Fprintf(w, "ok %s\n", loop.Link)
	}
}
