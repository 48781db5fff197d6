package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"PodAtlas/internal/history"
	"PodAtlas/internal/logger"
	"PodAtlas/internal/snapshot"
)

// SnapshotProvider serves the latest assembled network snapshot.
type SnapshotProvider interface {
	Current() *snapshot.Snapshot
}

// TrendProvider serves the trailing persisted history series.
type TrendProvider interface {
	Trend(limit int) history.TrendSeries
}

// Server is the HTTP API server.
type Server struct {
	addr      string           // addr is the HTTP listen address
	snapshots SnapshotProvider // snapshots serves the live network view
	trends    TrendProvider    // trends serves the persisted series
	server    *http.Server     // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, snapshots SnapshotProvider, trends TrendProvider) *Server {
	return &Server{
		addr:      addr,
		snapshots: snapshots,
		trends:    trends,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /api/history/trend", s.handleTrend)
	mux.HandleFunc("GET /health", s.handleHealth)

	return withCORS(mux)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleTelemetry handles GET /api/telemetry requests. It serves the
// snapshot published by the most recent successful crawl cycle; 503
// before the first cycle completes.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleTrend handles GET /api/history/trend requests. An optional
// limit query parameter bounds the trailing window.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, s.trends.Trend(limit))
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// withCORS allows browser dashboards on other origins to read the API.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
