// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/metrics"
	"github.com/jeranaias/forkchat/internal/transition"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the API version reported by /health.
	Version = "1.0.0"
)

// ============================================================================
// SERVER
// ============================================================================

// TransitionSource reports the current view-transition state.
type TransitionSource interface {
	State() transition.State
}

// Server is the graph HTTP API server.
type Server struct {
	cfg         config.ServerConfig
	ctrl        *branch.Controller
	transitions TransitionSource
	metrics     *metrics.Collector
	logger      *zap.Logger
	validate    *validator.Validate

	router http.Handler
	server *http.Server

	// ctx outlives individual requests so accepted submissions keep
	// streaming after the 202 is written. Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the listen address, CORS origins and rate limits.
func WithConfig(cfg config.ServerConfig) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables /metrics and request counting.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTransitions sets the source for GET /v1/transition.
func WithTransitions(t TransitionSource) Option {
	return func(s *Server) { s.transitions = t }
}

// New creates a server for ctrl.
func New(ctrl *branch.Controller, opts ...Option) *Server {
	s := &Server{
		cfg:      config.Default().Server,
		ctrl:     ctrl,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.router = s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Listen
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(Logger(s.logger))
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(RateLimit(NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst), s.logger))
		}

		r.Route("/graph", func(r chi.Router) {
			r.Get("/", s.handleGraph)
			r.Get("/nodes/{id}", s.handleNode)
			r.Post("/active", s.handleNavigate)
			r.Post("/messages", s.handleMessage)
			r.Post("/branches", s.handleBranch)
		})
		r.Get("/transition", s.handleTransition)
	})

	return r
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// NavigateRequest is the body of POST /v1/graph/active.
type NavigateRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

// MessageRequest is the body of POST /v1/graph/messages.
type MessageRequest struct {
	Content string `json:"content" validate:"required,max=100000"`
}

// BranchRequest is the body of POST /v1/graph/branches.
type BranchRequest struct {
	Excerpt  string `json:"excerpt" validate:"required,max=100000"`
	Question string `json:"question" validate:"required,max=100000"`
}

// SubmissionResponse acknowledges an accepted submission.
type SubmissionResponse struct {
	NodeID string `json:"node_id"`
	Kind   string `json:"kind"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Nodes     int    `json:"nodes"`
	Streaming bool   `json:"streaming"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   Version,
		Nodes:     s.ctrl.Graph().Len(),
		Streaming: s.ctrl.IsStreaming(),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Graph().Snapshot())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, ok := s.ctrl.Graph().Node(id)
	if !ok {
		s.writeFailure(w, &graph.Error{Kind: graph.KindUnknownNode, NodeID: id})
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.Navigate(req.NodeID); err != nil {
		s.writeFailure(w, err)
		return
	}
	n, _ := s.ctrl.Graph().Node(req.NodeID)
	s.writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.ctrl.StartMessage(s.ctx, req.Content)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, SubmissionResponse{NodeID: sub.NodeID, Kind: string(sub.Kind)})
}

func (s *Server) handleBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.ctrl.StartBranch(s.ctx, req.Excerpt, req.Question)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, SubmissionResponse{NodeID: sub.NodeID, Kind: string(sub.Kind)})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	if s.transitions == nil {
		s.writeJSON(w, http.StatusOK, transition.State{Stage: transition.StageIdle, View: transition.ViewFocused})
		return
	}
	s.writeJSON(w, http.StatusOK, s.transitions.State())
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("version", Version),
	)
	return s.server.Serve(ln)
}

// Shutdown stops accepting requests and cancels in-flight submissions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads and validates a JSON body, writing the error response itself
// when it returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		s.logger.Debug("invalid request body", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, field+" is too long")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// statusFor maps controller and graph errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case graph.IsUnknownNode(err):
		return http.StatusNotFound, "unknown_node"
	case graph.IsFrozenNode(err):
		return http.StatusConflict, "frozen_node"
	case errors.Is(err, branch.ErrBusy):
		return http.StatusConflict, "busy"
	case graph.IsMissingSlot(err):
		return http.StatusUnprocessableEntity, "missing_slot"
	case errors.Is(err, branch.ErrEmptyInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, branch.ErrNoActiveNode):
		return http.StatusConflict, "no_active_node"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, typ := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, status, typ, "internal error")
		return
	}
	s.writeError(w, status, typ, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, typ, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    typ,
			"code":    status,
		},
	})
}
