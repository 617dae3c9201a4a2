// Package server implements the Stride HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/paceline-ai/stride/internal/runlog"
	"github.com/paceline-ai/stride/internal/workflow"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Server is the Stride HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds all dependencies and settings for creating a Server.
// Optional fields (nil-safe): Retriever, MCPServer.
type Config struct {
	Router *workflow.Router
	RunLog runlog.Store
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Retriever   HealthChecker
	MCPServer   *mcpserver.MCPServer
	OpenAPISpec []byte

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := newHandlers(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/plan", h.handlePlan)
	mux.HandleFunc("POST /v1/adjust", h.handleAdjust)
	mux.HandleFunc("GET /v1/runlog", h.handleRunLog)
	mux.HandleFunc("GET /health", h.handleHealth)

	if len(cfg.OpenAPISpec) > 0 {
		mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPISpec)
		})
	}

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first):
	// request ID -> tracing -> logging -> recovery -> handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
