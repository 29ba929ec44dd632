// Package server provides the HTTP API for the pricebook service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/ingest"
	"github.com/offerdesk/pricebook/internal/search"
)

// Server is the HTTP server for the pricebook API.
type Server struct {
	engine  *search.Engine
	matcher *ingest.Matcher
	manager *catalog.Manager
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	matcher *ingest.Matcher,
	manager *catalog.Manager,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:  engine,
		matcher: matcher,
		manager: manager,
		config:  cfg,
		logger:  logger,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/api/v1/items/search", s.handleSearchItems)
	r.Get("/api/v1/clients/search", s.handleSearchClients)
	r.Get("/api/v1/filters", s.handleFilterOptions)
	r.Get("/api/v1/sheets", s.handleSheetNames)
	r.Post("/api/v1/uploads/match", s.handleMatchUpload)
	r.Post("/api/v1/catalogs/rebuild", s.handleRebuild)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
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
