package control

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"finfeed/domain"
)

var ErrAlreadyRunning = errors.New("already running")

// TryListen tries to bind the control address. If it's already in use, we
// assume an instance is running.
func TryListen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ErrAlreadyRunning
	}
	return ln, nil
}

// Server is the localhost control plane of the fetch daemon: manual
// processing triggers, scheduler status and statistics queries.
type Server struct {
	ctrl domain.Controller
}

func NewServer(ctrl domain.Controller) *Server { return &Server{ctrl: ctrl} }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/trigger":
		s.handleTrigger(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/status":
		s.handleStatus(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/stats":
		s.handleStats(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.TriggerManualProcessing(r.Context())
	if errors.Is(err, domain.ErrAlreadyRunning) {
		http.Error(w, "processing already running", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "24h"
	}
	stats, err := s.ctrl.Statistics(r.Context(), timeframe)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
