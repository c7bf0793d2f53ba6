// Package api exposes the store, finder and scorer over a REST interface:
// ingest, search and stats endpoints behind gin, with CORS and graceful
// shutdown.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/logging"
	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
	"github.com/moj-analytical-services/fuzzyfinder-go/pkg/config"
)

// Server is the REST API server wrapping a store and its search config.
type Server struct {
	router     *gin.Engine
	store      *store.Store
	config     *config.Config
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds a Server over s, ready to have its routes started.
func NewServer(s *store.Store, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		log.Debug("enabling CORS")
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:   []string{"Content-Length"},
			MaxAge:          12 * time.Hour,
		}))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	server := &Server{
		router: router,
		store:  s,
		config: cfg,
		log:    log,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.GET("/health", s.healthHandler)
		api.GET("/stats", s.statsHandler)

		api.POST("/ingest", MaxBodySizeMiddleware(IngestBodyLimit), s.ingestHandler)
		api.GET("/records/:id", s.getRecordHandler)

		api.POST("/search", s.searchHandler)
	}
}

// Start starts the HTTP server, choosing an available port if AutoPort is
// configured and the preferred one is taken.
func (s *Server) Start() error {
	return s.StartWithContext(context.Background(), 0)
}

// StartWithContext starts the HTTP server and blocks until ctx is
// cancelled or the server fails, shutting down gracefully within
// shutdownTimeout when cancelled.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	port := s.config.RestAPI.Port
	if s.config.RestAPI.AutoPort {
		availablePort, err := findAvailablePort(port)
		if err != nil {
			s.log.Error("failed to find available port", "error", err, "start_port", port)
			return fmt.Errorf("failed to find available port: %w", err)
		}
		port = availablePort
		s.log.Debug("found available port", "port", port)
	}

	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("server shutdown error", "error", err)
			return err
		}
		s.log.Info("REST API server stopped")
	}
	return nil
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+99)
}
