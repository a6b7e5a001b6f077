// Package server exposes the engine over HTTP for the review UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mediadupfinder/internal/models"
	"mediadupfinder/internal/session"
)

// Engine is the subset of the engine the server drives
type Engine interface {
	StartScan(ctx context.Context, class models.AssetClass) error
	CancelScan(class models.AssetClass)
	Status(class models.AssetClass) models.Status
	MonthBuckets(class models.AssetClass) []models.MonthBucket
	Subscribe(class models.AssetClass) (<-chan struct{}, func(), error)
	Toggle(class models.AssetClass, groupID, assetID string) (bool, error)
	DeleteSelected(ctx context.Context, class models.AssetClass) ([]models.AssetRef, error)
}

// LookupFunc resolves an asset ID to a listed asset
type LookupFunc func(id string) (models.AssetRef, bool)

// Server represents the web server
type Server struct {
	engine      Engine
	lookup      LookupFunc
	addr        string
	idleTimeout time.Duration
	log         zerolog.Logger
	httpServer  *http.Server

	// Idle timeout management
	mu            sync.Mutex
	lastActivity  time.Time
	tabActive     bool
	activeClients int
	shutdownChan  chan struct{}
	shutdownOnce  sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithIdleTimeout stops the server after d without requests or clients
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithLookup enables the media endpoint for assets lookup knows
func WithLookup(fn LookupFunc) Option {
	return func(s *Server) {
		s.lookup = fn
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates a new Server
func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		engine:       eng,
		addr:         "127.0.0.1:8080",
		log:          zerolog.Nop(),
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route registered
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.activity)

	r.Route("/api/classes/{class}", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/months", s.handleMonths)
		r.Post("/scan", s.handleScan)
		r.Post("/cancel", s.handleCancel)
		r.Post("/toggle", s.handleToggle)
		r.Post("/delete", s.handleDelete)
	})
	r.Get("/api/media", s.handleMedia)

	// WebSocket for status pushes and connection monitoring
	r.Get("/ws", s.handleWebSocket)

	return r
}

// Run serves until ctx is done or the idle timeout elapses
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start idle timeout checker
	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker()
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down server")
	case <-s.shutdownChan:
		s.log.Info().Dur("idle_timeout", s.idleTimeout).Msg("idle timeout reached, shutting down server")
	}
	s.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) stop() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

func (s *Server) idleTimeoutChecker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.idleFor() >= s.idleTimeout {
				s.stop()
				return
			}
		case <-s.shutdownChan:
			return
		}
	}
}

// idleFor reports how long no request arrived. An active tab or an open
// WebSocket keeps the server busy.
func (s *Server) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabActive || s.activeClients > 0 {
		s.lastActivity = time.Now()
		return 0
	}
	return time.Since(s.lastActivity)
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) setTabActive(active bool) {
	s.mu.Lock()
	s.tabActive = active
	if active {
		s.lastActivity = time.Now()
	}
	s.mu.Unlock()
}

func (s *Server) activity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordActivity()
		next.ServeHTTP(w, r)
	})
}

// API Handlers

func classParam(w http.ResponseWriter, r *http.Request) (models.AssetClass, bool) {
	class, err := models.ParseAssetClass(chi.URLParam(r, "class"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return class, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	class, ok := classParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status(class))
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	class, ok := classParam(w, r)
	if !ok {
		return
	}
	buckets := s.engine.MonthBuckets(class)
	if buckets == nil {
		buckets = []models.MonthBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	class, ok := classParam(w, r)
	if !ok {
		return
	}
	if err := s.engine.StartScan(r.Context(), class); err != nil {
		s.log.Error().Err(err).Str("class", string(class)).Msg("scan failed to start")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.engine.Status(class))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	class, ok := classParam(w, r)
	if !ok {
		return
	}
	s.engine.CancelScan(class)
	writeJSON(w, http.StatusAccepted, s.engine.Status(class))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	class, ok := classParam(w, r)
	if !ok {
		return
	}

	var req struct {
		GroupID string `json:"group_id"`
		AssetID string `json:"asset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	selected, err := s.engine.Toggle(class, req.GroupID, req.AssetID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrGroupNotFound) || errors.Is(err, session.ErrMemberNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	class, ok := classParam(w, r)
	if !ok {
		return
	}

	deleted, err := s.engine.DeleteSelected(r.Context(), class)
	resp := map[string]any{
		"deleted": len(deleted),
		"freed":   freedBytes(deleted),
	}
	if err != nil {
		s.log.Warn().Err(err).Str("class", string(class)).Msg("delete incomplete")
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		http.NotFound(w, r)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id required"))
		return
	}
	asset, ok := s.lookup(id)
	if !ok || asset.Path == "" {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, asset.Path)
}

func freedBytes(assets []models.AssetRef) int64 {
	var n int64
	for _, a := range assets {
		n += a.FileSize
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
