// Package server provides the HTTP control surface for the frame pipeline.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/server/api"
	"github.com/ayusman/framepipe/internal/store"
)

// Controller is the part of the pipeline controller the server drives.
type Controller interface {
	Start() error
	Stop()
	RelaunchDisplay() (bool, error)
	Status() app.Status
	Pipeline() *config.Pipeline
}

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Controller Controller
	Store      *store.Store
	// Events receives config change notifications. It may be nil.
	Events *event.Bus
	// Hub streams bus events to websocket clients. It may be nil.
	Hub    *Hub
	Logger logrus.FieldLogger
}

// Server represents the HTTP server for the pipeline.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    logrus.FieldLogger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    config.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if c := s.config.Controller; c != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/pipeline/start", s.handleStart)
		s.mux.HandleFunc("/api/pipeline/stop", s.handleStop)
		s.mux.HandleFunc("/api/display/relaunch", s.handleRelaunch)

		configHandler := api.NewConfigHandler(c.Pipeline(), s.config.Events)
		s.mux.Handle("/api/config", configHandler)
		s.mux.Handle("/api/config/", configHandler)

		if s.config.Store != nil {
			presetHandler := api.NewPresetHandler(s.config.Store, c.Pipeline(), s.config.Events)
			s.mux.Handle("/api/presets", presetHandler)
			s.mux.Handle("/api/presets/", presetHandler)
		}
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/events", api.NewEventHandler(s.config.Store))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/ws", s.config.Hub)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Controller.Status())
}

// handleStart handles POST /api/pipeline/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.config.Controller.Start(); err != nil {
		s.log.WithError(err).Warn("Start requested over HTTP failed")
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.config.Controller.Status())
}

// handleStop handles POST /api/pipeline/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.config.Controller.Stop()
	writeJSON(w, http.StatusOK, s.config.Controller.Status())
}

// handleRelaunch handles POST /api/display/relaunch.
func (s *Server) handleRelaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	started, err := s.config.Controller.RelaunchDisplay()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
