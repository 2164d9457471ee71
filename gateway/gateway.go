// Package gateway exposes pipe management over HTTP and pushes change
// events to WebSocket subscribers.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/config"
	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/health"
	"github.com/brickflow/brickflow/pipe"
	"github.com/brickflow/brickflow/pipestore"
	"github.com/brickflow/brickflow/view/drawer"
)

const maxRequestSize = 1 << 20 // 1MB

// Server serves the pipe management API
type Server struct {
	cfg      config.GatewayConfig
	store    *pipestore.Store
	registry *brick.Registry
	monitor  *health.Monitor
	logger   *slog.Logger
	hub      *Hub

	httpServer *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMonitor sets the health monitor backing the healthz endpoint
func WithMonitor(m *health.Monitor) Option {
	return func(s *Server) {
		s.monitor = m
	}
}

// NewServer creates a gateway server over a pipe store and brick registry
func NewServer(cfg config.GatewayConfig, store *pipestore.Store, registry *brick.Registry,
	opts ...Option) (*Server, error) {

	if store == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("store cannot be nil"),
			"gateway", "NewServer", "validation")
	}
	if registry == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("registry cannot be nil"),
			"gateway", "NewServer", "validation")
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		monitor:  health.NewMonitor(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	return s, nil
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/pipes", s.withRequestID(s.handleListPipes))
	mux.HandleFunc("POST /api/pipes", s.withRequestID(s.handleCreatePipe))
	mux.HandleFunc("GET /api/pipes/{id}", s.withRequestID(s.handleGetPipe))
	mux.HandleFunc("PUT /api/pipes/{id}", s.withRequestID(s.handleUpdatePipe))
	mux.HandleFunc("DELETE /api/pipes/{id}", s.withRequestID(s.handleDeletePipe))
	mux.HandleFunc("GET /api/pipes/{id}/graph", s.withRequestID(s.handlePipeGraph))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /ws", s.hub.HandleUpgrade)

	return mux
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.WrapTransient(err, "gateway", "Run", "shutdown")
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return errors.WrapFatal(err, "gateway", "Run", "serve HTTP")
		}
		return nil
	}
}

// getOrGenerateRequestID extracts the request ID header or generates one
// for tracing
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)
		next(w, r)
	}
}

func (s *Server) handleListPipes(w http.ResponseWriter, r *http.Request) {
	pipes, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pipes)
}

func (s *Server) handleGetPipe(w http.ResponseWriter, r *http.Request) {
	sp, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleCreatePipe(w http.ResponseWriter, r *http.Request) {
	sp, ok := s.readStoredPipe(w, r)
	if !ok {
		return
	}
	if sp.ID == "" {
		s.writeError(w, http.StatusBadRequest, "pipe ID is required")
		return
	}

	// Reject definitions the registry cannot rebuild before persisting
	if _, err := pipe.FromRecord(sp.Pipe, s.registry); err != nil {
		s.writeError(w, http.StatusBadRequest, "pipe definition is not valid")
		return
	}

	if err := s.store.Create(r.Context(), sp); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.hub.Broadcast(Event{Type: EventPipeCreated, PipeID: sp.ID, Version: sp.Version})
	s.writeJSON(w, http.StatusCreated, sp)
}

func (s *Server) handleUpdatePipe(w http.ResponseWriter, r *http.Request) {
	sp, ok := s.readStoredPipe(w, r)
	if !ok {
		return
	}
	sp.ID = r.PathValue("id")

	if _, err := pipe.FromRecord(sp.Pipe, s.registry); err != nil {
		s.writeError(w, http.StatusBadRequest, "pipe definition is not valid")
		return
	}

	if err := s.store.Update(r.Context(), sp); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.hub.Broadcast(Event{Type: EventPipeUpdated, PipeID: sp.ID, Version: sp.Version})
	s.writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleDeletePipe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.hub.Broadcast(Event{Type: EventPipeDeleted, PipeID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePipeGraph(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Load(r.Context(), r.PathValue("id"), s.registry)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	d := drawer.New()
	if err := d.AddPipe(p); err != nil {
		s.writeError(w, http.StatusInternalServerError, "unable to build graph")
		return
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz")
	if err := d.Render(w); err != nil {
		s.logger.Error("graph render failed", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := s.monitor.AggregateHealth("brickflow")

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// readStoredPipe decodes a StoredPipe from the request body with a size
// limit
func (s *Server) readStoredPipe(w http.ResponseWriter, r *http.Request) (*pipestore.StoredPipe, bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(body) > maxRequestSize {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", maxRequestSize))
		return nil, false
	}

	var sp pipestore.StoredPipe
	if err := json.Unmarshal(body, &sp); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return nil, false
	}
	return &sp, true
}

// writeStoreError maps store errors to HTTP statuses without leaking
// internal details
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("store operation failed",
		"method", r.Method, "path", r.URL.Path, "error", err)

	switch {
	case stderrors.Is(err, errors.ErrPipeNotFound):
		s.writeError(w, http.StatusNotFound, "pipe not found")
	case stderrors.Is(err, errors.ErrPipeExists):
		s.writeError(w, http.StatusConflict, "pipe already exists")
	case stderrors.Is(err, errors.ErrVersionConflict):
		s.writeError(w, http.StatusConflict, "pipe was modified by another client")
	case errors.IsInvalid(err):
		s.writeError(w, http.StatusBadRequest, "invalid request")
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			s.writeError(w, http.StatusGatewayTimeout, "request timeout")
		} else {
			s.writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		}
	default:
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]any{
		"error":  message,
		"status": statusCode,
	})
}
