// Package api exposes the local agent over a small JSON HTTP API so that
// other local processes can inspect the agent and run skills on demand.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/zeroagent/zeroagent/pkg/agent"
	"github.com/zeroagent/zeroagent/pkg/history"
	"github.com/zeroagent/zeroagent/pkg/logger"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// maxBodyBytes bounds the size of run requests
const maxBodyBytes = 1 << 20

// Service is the part of the agent served over HTTP
type Service interface {
	Status(ctx context.Context) (agent.Report, error)
	List(ctx context.Context, pattern string) ([]skilltypes.Entry, error)
	Get(ctx context.Context, name string) (skilltypes.Entry, error)
	Run(ctx context.Context, name string, inputs map[string]any) (any, error)
}

// HistoryLister reads the execution journal
type HistoryLister interface {
	List(ctx context.Context, filter history.Filter) ([]history.Run, error)
}

// ServerConfig holds the listen address of the API server
type ServerConfig struct {
	Host string
	Port int
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns host:port
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server serves the agent API
type Server struct {
	router  *mux.Router
	service Service
	history HistoryLister
	config  *ServerConfig
	server  *http.Server
}

// NewServer creates an API server. history may be nil, in which case the
// history endpoint reports that the journal is unavailable.
func NewServer(config *ServerConfig, service Service, history HistoryLister) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}
	s := &Server{
		router:  mux.NewRouter(),
		service: service,
		history: history,
		config:  config,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the router, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/skills", s.handleListSkills).Methods("GET")
	api.HandleFunc("/skills/{name}", s.handleGetSkill).Methods("GET")
	api.HandleFunc("/skills/{name}/run", s.handleRunSkill).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Status(r.Context())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, report)
}

// handleListSkills handles GET /api/skills?match=<pattern>
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.List(r.Context(), r.URL.Query().Get("match"))
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "failed to list skills", err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"skills": entries,
		"total":  len(entries),
	})
}

// handleGetSkill handles GET /api/skills/{name}
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, entry)
}

// RunRequest is the body of POST /api/skills/{name}/run
type RunRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// RunResponse is returned by a successful run
type RunResponse struct {
	Skill   string `json:"skill"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
}

// handleRunSkill handles POST /api/skills/{name}/run
func (s *Server) handleRunSkill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var req RunRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.service.Run(ctx, name, req.Inputs)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, RunResponse{Skill: name, Success: true, Result: result})
}

// handleHistory handles GET /api/history?skill=<name>&limit=<n>
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.history == nil {
		s.writeErrorResponse(ctx, w, http.StatusServiceUnavailable, "run history is disabled", nil)
		return
	}

	query := r.URL.Query()
	filter := history.Filter{SkillName: query.Get("skill")}
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.writeErrorResponse(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", limitStr), nil)
			return
		}
		filter.Limit = limit
	}

	runs, err := s.history.List(ctx, filter)
	if err != nil {
		s.writeErrorResponse(ctx, w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, map[string]any{"runs": runs})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(ctx).WithError(err).Error("failed to encode JSON response")
	}
}

// writeError maps the orchestrator error kinds onto HTTP statuses
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var locked *skilltypes.LockedError
	switch {
	case errors.Is(err, skilltypes.ErrNotInstalled):
		s.writeErrorResponse(ctx, w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &locked):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   locked.Error(),
			"reason":  locked.Reason,
			"status":  http.StatusForbidden,
			"success": false,
		})
	case errors.Is(err, skilltypes.ErrNotRunnable):
		s.writeErrorResponse(ctx, w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, skilltypes.ErrSkillFailed):
		s.writeErrorResponse(ctx, w, http.StatusBadGateway, err.Error(), nil)
	default:
		s.writeErrorResponse(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		logger.G(ctx).WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error":   message,
		"status":  statusCode,
		"success": false,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.G(ctx).WithError(err).Error("failed to encode error response")
	}
}

// Start serves the API until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.config.Address())
	}
	return s.Serve(ctx, listener)
}

// Serve serves the API on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	logger.G(ctx).WithField("address", listener.Addr().String()).Info("API server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "API server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
