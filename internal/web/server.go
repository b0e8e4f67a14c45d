// Package web provides the HTTP control page and status endpoints.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/status"
)

// maxFormBytes bounds the configuration form body.
const maxFormBytes = 4 << 10

// Server serves the control page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads and controls state through the tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/reset", s.handleReset)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		snap := s.tracker.Snapshot()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		renderHTML(w, snap)
	case http.MethodPost:
		s.handleConfigure(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConfigure applies the pulse/pause form. Bad input changes
// nothing and is reported with 400.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		logger.Warn().Err(err).Msg("Rejected configuration form")
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	pulse, pause, err := status.ParseDurations(r.PostForm.Get("pulse"), r.PostForm.Get("pause"))
	if err == nil {
		err = s.tracker.SetDurations(pulse, pause)
	}
	if err != nil {
		if errors.HasCode(err, errors.ErrInvalidDuration) {
			logger.Warn().Err(err).
				Str("pulse", r.PostForm.Get("pulse")).
				Str("pause", r.PostForm.Get("pause")).
				Msg("Rejected configuration")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Applied but not persisted; the page shows the live values.
		logger.Warn().Err(err).Msg("Configuration applied without persistence")
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(status.FormatStatus(snap))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.tracker.RequestReset()
	w.WriteHeader(http.StatusNoContent)
}
