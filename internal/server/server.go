// Package server provides the HTTP server for posewatch.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/posewatch/internal/hub"
	"github.com/ayusman/posewatch/internal/logging"
	"github.com/ayusman/posewatch/internal/server/api"
	"github.com/ayusman/posewatch/internal/store"
)

// Default crop API limits per client.
const (
	DefaultRateLimit = 20
	DefaultRateBurst = 40
)

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Logger     logrus.FieldLogger
	Hub        *hub.Hub
	Store      *store.Store
	Controller api.Controller

	// RateLimit is requests per second per client IP on /api/crop.
	RateLimit float64
	RateBurst int

	// PoseInputSize is the side of person snapshots.
	PoseInputSize int
}

// Server represents the HTTP server for the posewatch application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	ids     *idSource
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.RateLimit <= 0 {
		config.RateLimit = DefaultRateLimit
	}
	if config.RateBurst <= 0 {
		config.RateBurst = DefaultRateBurst
	}
	if config.PoseInputSize <= 0 {
		config.PoseInputSize = 192
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		ids:    newIDSource(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = s.requestID(s.accessLog(s.mux))
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if ctrl := s.config.Controller; ctrl != nil {
		s.mux.Handle("/api/status", api.NewStatusHandler(ctrl))
		s.mux.Handle("/api/camera", api.NewCameraHandler(ctrl))

		limiter := newRateLimiter(rate.Limit(s.config.RateLimit), s.config.RateBurst)
		s.mux.Handle("/api/crop", s.rateLimit(limiter, api.NewCropHandler(ctrl.Bounds)))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Hub, s.ids))
		s.mux.Handle("/api/overlays", NewOverlayHandler(s.config.Hub, s.ids, s.config.Logger))
		s.mux.Handle("/api/snapshot", NewSnapshotHandler(s.config.Hub, s.config.PoseInputSize))
	}

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
