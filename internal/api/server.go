// Package api exposes the retrieval engine over a small JSON HTTP
// surface: document ingestion, retrieval, grounded chat, removal, and
// stats.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mikeyan-promax/Weplus-sub000/internal/retrieval"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger *slog.Logger
	Engine *retrieval.Engine // Required
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{engine: cfg.Engine, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", h.ingest)
	mux.HandleFunc("DELETE /api/documents/{id}", h.remove)
	mux.HandleFunc("POST /api/retrieve", h.retrieve)
	mux.HandleFunc("POST /api/chat", h.chat)
	mux.HandleFunc("GET /api/stats", h.stats)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → Routes
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probe stays outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", healthz)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
