// Package server provides the HTTP API: search, ingest, collection status, and
// inbox directory management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/ingest"
	"github.com/hyperjump/dashrag/internal/models"
)

// Searcher answers search requests.
type Searcher interface {
	Respond(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
}

// Ingester folds source files into the collection.
type Ingester interface {
	ProcessFiles(ctx context.Context, paths ...string) (*ingest.Report, error)
}

// Collection exposes what the status endpoint reports.
type Collection interface {
	Path() string
	Loaded() bool
	Info() (*models.CollectionInfo, error)
	Count() int
	DiskUsage() (int64, error)
	Documents(ctx context.Context, filter models.Filter, offset, limit int) ([]models.Document, error)
}

// WatchService manages the inbox directories. May be nil when watching is disabled.
type WatchService interface {
	Directories() []string
	AddDirectory(path string) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the dashrag API.
type Server struct {
	searcher   Searcher
	ingester   Ingester
	collection Collection
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server

	watch       WatchService
	configPath  string
	appConfig   *config.Config
	appConfigMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithWatch enables the watch directory endpoints. When configPath and cfg are set,
// directory changes are written back to the config file.
func WithWatch(watch WatchService, configPath string, cfg *config.Config) Option {
	return func(s *Server) {
		s.watch = watch
		s.configPath = configPath
		s.appConfig = cfg
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	searcher Searcher,
	ingester Ingester,
	col Collection,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		searcher:   searcher,
		ingester:   ingester,
		collection: col,
		config:     cfg,
		logger:     logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/ingest", s.handleIngest)
		r.Get("/status", s.handleStatus)
		r.Get("/documents", s.handleDocuments)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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
