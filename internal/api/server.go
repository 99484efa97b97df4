// Package api exposes the HTTP interface for the sync service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
	"github.com/listwatch/listwatch/internal/middleware"
)

// SnapshotReader is the read side of the snapshot store.
type SnapshotReader interface {
	Load(ctx context.Context, search string) (map[listing.ItemID]listing.Entry, error)
}

// Syncer runs one synchronization for a named search.
type Syncer interface {
	Sync(ctx context.Context, search string) (listing.Snapshot, error)
}

// SearchInfo describes one configured search.
type SearchInfo struct {
	Name             string   `json:"name"`
	URL              string   `json:"url"`
	TitleMustContain []string `json:"title_must_contain,omitempty"`
}

// Config controls the HTTP server.
type Config struct {
	AuthEnabled bool
	APIKey      string
	Timeout     time.Duration
}

// Server wires HTTP handlers to the snapshot store and sync runner.
type Server struct {
	router    chi.Router
	searches  []SearchInfo
	snapshots SnapshotReader
	syncer    Syncer
	logger    *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	searches []SearchInfo,
	snapshots SnapshotReader,
	syncer Syncer,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	s := &Server{
		searches:  searches,
		snapshots: snapshots,
		syncer:    syncer,
		logger:    logger,
		running:   make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Metrics)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.Timeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/searches", func(r chi.Router) {
			r.Get("/", s.listSearches)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/snapshot", s.getSnapshot)
				r.Post("/sync", s.startSync)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSearches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"searches": s.searches})
}

type snapshotResponse struct {
	Search   string                 `json:"search"`
	URL      string                 `json:"url"`
	Total    int                    `json:"total"`
	Totals   map[listing.Status]int `json:"totals"`
	Listings []listing.Entry        `json:"listings"`
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	info, ok := s.findSearch(chi.URLParam(r, "name"))
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "search not found")
		return
	}

	prior, err := s.snapshots.Load(r.Context(), info.Name)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	entries := make([]listing.Entry, 0, len(prior))
	totals := make(map[listing.Status]int, 4)
	for _, e := range prior {
		entries = append(entries, e)
		totals[e.Status]++
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ItemID < entries[j].ItemID })

	writeJSON(s.logger, w, http.StatusOK, snapshotResponse{
		Search:   info.Name,
		URL:      info.URL,
		Total:    len(entries),
		Totals:   totals,
		Listings: entries,
	})
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	info, ok := s.findSearch(chi.URLParam(r, "name"))
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "search not found")
		return
	}
	if s.syncer == nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "sync runner not configured")
		return
	}
	if !s.markRunning(info.Name) {
		writeError(s.logger, w, http.StatusConflict, "sync already running")
		return
	}

	// The run outlives the request, so it gets its own context.
	go func() {
		defer s.clearRunning(info.Name)
		if _, err := s.syncer.Sync(context.Background(), info.Name); err != nil {
			s.logger.Error("background sync failed",
				zap.String("search", info.Name),
				zap.Error(err),
			)
		}
	}()

	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"search": info.Name,
		"status": "started",
	})
}

func (s *Server) findSearch(name string) (SearchInfo, bool) {
	for _, info := range s.searches {
		if info.Name == name {
			return info, true
		}
	}
	return SearchInfo{}, false
}

func (s *Server) markRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Server) clearRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
