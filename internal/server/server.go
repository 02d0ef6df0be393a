// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/chunker"
	"github.com/kotaehq/kotae/internal/config"
	"github.com/kotaehq/kotae/internal/rag"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	engine  *rag.Engine
	chunker *chunker.Chunker
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *rag.Engine, ck *chunker.Chunker, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		engine:  engine,
		chunker: ck,
		config:  cfg,
		logger:  logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/chat", s.handleChat)
	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/sources/{id}", s.handleGetSource)
	r.Get("/api/v1/chunks/{file}", s.handleChunks)
	r.Get("/api/v1/cache/stats", s.handleCacheStats)
	r.Delete("/api/v1/cache", s.handleClearCache)
	r.Delete("/api/v1/cache/embeddings", s.handleClearEmbeddings)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
