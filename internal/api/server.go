package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ziggonext/internal/box"
	"ziggonext/internal/catalog"
	"ziggonext/internal/controller"
	"ziggonext/internal/metadata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Household is the controller surface served over HTTP
type Household interface {
	Boxes() ([]box.Snapshot, error)
	Box(id string) (box.Snapshot, error)
	Command(id, action string) (bool, error)
	SetChannel(id, serviceID string) error
	SelectSource(id, title string) error
	PlayRecording(id, recordingID string) error
	Channels() []catalog.Channel
	LoadChannels(ctx context.Context) error
	Recordings(ctx context.Context) ([]metadata.RecordingItem, error)
	ShowRecordings(ctx context.Context, mediaGroupID string) (*metadata.RecordingShow, error)
	OnChange(fn func(box.Snapshot))
}

// Server provides HTTP API endpoints for the household's boxes
type Server struct {
	household Household
	logger    *zap.Logger
	events    *Hub
	router    chi.Router
	server    *http.Server
}

// NewServer creates a new API server and subscribes its event hub to box changes
func NewServer(household Household, logger *zap.Logger, port int) *Server {
	s := &Server{
		household: household,
		logger:    logger.Named("api"),
		events:    NewHub(logger),
	}
	household.OnChange(s.events.Broadcast)

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/events", s.events.ServeHTTP)

	r.Route("/api/boxes", func(r chi.Router) {
		r.Get("/", s.handleListBoxes)
		r.Get("/{id}", s.handleGetBox)
		r.Post("/{id}/channel", s.handleSetChannel)
		r.Post("/{id}/recording", s.handlePlayRecording)
		r.Post("/{id}/{action}", s.handleCommand)
	})
	r.Get("/api/channels", s.handleListChannels)
	r.Post("/api/channels/reload", s.handleReloadChannels)
	r.Get("/api/recordings", s.handleListRecordings)
	r.Get("/api/recordings/{mediaGroupId}", s.handleShowRecordings)

	s.router = r
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Events returns the snapshot event hub
func (s *Server) Events() *Hub {
	return s.events
}

// CommandResponse reports whether a command was sent to the box
type CommandResponse struct {
	Sent bool `json:"sent"`
}

type channelRequest struct {
	ServiceID string `json:"serviceId"`
	Title     string `json:"title"`
}

type recordingRequest struct {
	RecordingID string `json:"recordingId"`
}

func (s *Server) handleListBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := s.household.Boxes()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, boxes)
}

func (s *Server) handleGetBox(w http.ResponseWriter, r *http.Request) {
	snap, err := s.household.Box(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")
	if !controller.IsAction(action) {
		http.Error(w, fmt.Sprintf("unknown action %q", action), http.StatusBadRequest)
		return
	}

	sent, err := s.household.Command(id, action)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Debug("Command request served",
		zap.String("box_id", id),
		zap.String("action", action),
		zap.Bool("sent", sent))
	s.writeJSON(w, http.StatusOK, CommandResponse{Sent: sent})
}

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	var err error
	switch {
	case req.ServiceID != "":
		err = s.household.SetChannel(id, req.ServiceID)
	case req.Title != "":
		err = s.household.SelectSource(id, req.Title)
	default:
		http.Error(w, "serviceId or title is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{Sent: true})
}

func (s *Server) handlePlayRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecordingID == "" {
		http.Error(w, "recordingId is required", http.StatusBadRequest)
		return
	}
	if err := s.household.PlayRecording(chi.URLParam(r, "id"), req.RecordingID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{Sent: true})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.household.Channels())
}

func (s *Server) handleReloadChannels(w http.ResponseWriter, r *http.Request) {
	if err := s.household.LoadChannels(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.household.Channels())
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	items, err := s.household.Recordings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleShowRecordings(w http.ResponseWriter, r *http.Request) {
	show, err := s.household.ShowRecordings(r.Context(), chi.URLParam(r, "mediaGroupId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, show)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
	{Path: "/api/events", Method: "GET", Description: "WebSocket stream of box snapshots"},
	{Path: "/api/boxes", Method: "GET", Description: "List all boxes with state and now-playing info"},
	{Path: "/api/boxes/{id}", Method: "GET", Description: "Get one box"},
	{Path: "/api/boxes/{id}/{action}", Method: "POST", Description: "Run a remote action (on, off, play, pause, next, previous, rewind, fastforward, stop, enter, record)"},
	{Path: "/api/boxes/{id}/channel", Method: "POST", Description: "Tune to a channel: {\"serviceId\": ...} or {\"title\": ...}"},
	{Path: "/api/boxes/{id}/recording", Method: "POST", Description: "Play a network recording: {\"recordingId\": ...}"},
	{Path: "/api/channels", Method: "GET", Description: "List the channel catalog"},
	{Path: "/api/channels/reload", Method: "POST", Description: "Reload the channel catalog"},
	{Path: "/api/recordings", Method: "GET", Description: "List network recordings"},
	{Path: "/api/recordings/{mediaGroupId}", Method: "GET", Description: "List the episodes of a recorded show"},
}

// handleSitemap returns a plain text list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Ziggo Next API\n")
	fmt.Fprintf(w, "==============\n\n")
	fmt.Fprintf(w, "Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-32s %s\n", ep.Method, ep.Path, ep.Description)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, box.ErrUnknownBox),
		errors.Is(err, controller.ErrUnknownChannel),
		errors.Is(err, metadata.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, controller.ErrNotConnected):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("Request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes event subscribers
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.events.Close()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
