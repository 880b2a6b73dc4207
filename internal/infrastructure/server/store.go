package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/workspace/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/remote"
)

// StoreServer serves only the remote layout store API over SQLite
type StoreServer struct {
	http    *http.Server
	store   *remote.SQLiteStore
	logger  *logging.Logger
	timeout time.Duration
}

// NewStoreServer opens the SQLite store and builds its router
func NewStoreServer(cfg *config.Config, logger *logging.Logger) (*StoreServer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	dbPath := cfg.Remote.DBPath
	if dbPath == "" {
		dbPath = paths.New(cfg.Storage.DataDir).StoreDB()
	}
	store, err := remote.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics := monitoring.NewMetrics()
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			IdleTimeout:       10 * time.Minute,
		}))
	}
	apihttp.NewStoreHandlers(store, logger).Register(router)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "layout-store"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Layout store initialized", zap.String("db", dbPath))
	return &StoreServer{
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store:   store,
		logger:  logger,
		timeout: cfg.Server.ShutdownTimeout,
	}, nil
}

// Handler returns the HTTP handler
func (s *StoreServer) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx ends, then shuts down
func (s *StoreServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting layout store", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return multierr.Append(serveErr, s.Close(shutdownCtx))
}

// Close stops the listener and closes the database
func (s *StoreServer) Close(ctx context.Context) error {
	return multierr.Append(s.http.Shutdown(ctx), s.store.Close())
}
