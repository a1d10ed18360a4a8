package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vitalone/vitalsync/internal/analyzer"
	"github.com/vitalone/vitalsync/internal/infrastructure/config"
	"github.com/vitalone/vitalsync/internal/infrastructure/database"
	"github.com/vitalone/vitalsync/internal/infrastructure/logging"
	"github.com/vitalone/vitalsync/internal/source"
	"github.com/vitalone/vitalsync/internal/sync"
	"github.com/vitalone/vitalsync/internal/testrun"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Sync      *sync.Service
	Stores    *database.Manager
	Analyzers analyzer.Repository
	Runs      testrun.Repository
	Sources   source.Repository
	Version   string
}

// Server is the HTTP API server for VitalSync.
//
// It manages the HTTP listener, routes and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	sync      *sync.Service
	stores    *database.Manager
	analyzers analyzer.Repository
	runs      testrun.Repository
	sources   source.Repository
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sync == nil {
		return nil, fmt.Errorf("sync service is required")
	}
	if deps.Analyzers == nil || deps.Runs == nil || deps.Sources == nil {
		return nil, fmt.Errorf("canonical repositories are required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		sync:      deps.Sync,
		stores:    deps.Stores,
		analyzers: deps.Analyzers,
		runs:      deps.Runs,
		sources:   deps.Sources,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server, waiting up to
// gracefulShutdownTimeout for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
