package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/workspace/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/health"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/loader"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/persistence"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/local"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/remote"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/session"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	registry *registry.Manager
	seeder   *registry.Seeder
	sessions *workspace.Manager
	local    *local.Store
	remote   remote.Backend
	closers  []io.Closer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Info("Initializing workspace server",
		zap.String("addr", cfg.Addr()),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("remote_backend", cfg.Remote.Backend),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	root := paths.New(cfg.Storage.DataDir)
	if err := root.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	s := &Server{logger: logger, config: cfg, metrics: metrics}

	// Durable local tier
	disk, err := local.NewStore(root.Workspaces(),
		local.WithCompression(cfg.Storage.Compression),
		local.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s.local = disk
	s.closers = append(s.closers, disk)

	// Remote tier (optional)
	s.remote, err = s.openRemote(root)
	if err != nil {
		_ = s.closeResources()
		return nil, err
	}

	// Component registry: builtins, then manifests
	s.registry = registry.NewManager(registry.WithLogger(logger), registry.WithMetrics(metrics))
	if err := registry.RegisterBuiltins(s.registry); err != nil {
		_ = s.closeResources()
		return nil, fmt.Errorf("failed to register builtin modules: %w", err)
	}
	manifestDir := cfg.Registry.ManifestDir
	if manifestDir == "" {
		manifestDir = root.Modules()
	}
	s.seeder = registry.NewSeeder(s.registry, manifestDir, logger)
	result, err := s.seeder.Seed()
	if err != nil {
		logger.Warn("Failed to seed module manifests", zap.Error(err))
	}
	logger.Info("Component registry ready",
		zap.Int("loaded", result.Loaded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("total", s.registry.Stats().Total),
	)

	// Workspace sessions
	volatile := session.NewStore()
	healthTimeout := cfg.Health.Timeout
	newMonitor := func(link *types.ComponentLink) loader.Monitor {
		return health.NewMonitor(link,
			health.WithTimeout(healthTimeout),
			health.WithLogger(logger),
			health.WithMetrics(metrics))
	}
	persist := persistence.Config{
		Debounce:        cfg.Persistence.Debounce,
		FlushInterval:   cfg.Persistence.FlushInterval,
		ShutdownTimeout: cfg.Persistence.FlushTimeout,
		RemoteTimeout:   cfg.Remote.Timeout,
	}
	s.sessions = workspace.NewManager(func(user string) workspace.Options {
		opts := workspace.Options{
			User:        user,
			Local:       disk,
			Volatile:    volatile,
			Registry:    s.registry,
			NewMonitor:  newMonitor,
			Persistence: persist,
			Logger:      logger,
			Metrics:     metrics,
		}
		if s.remote != nil {
			opts.Remote = s.remote
		}
		return opts
	}, logger, metrics)

	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) openRemote(root paths.Root) (remote.Backend, error) {
	cfg := s.config.Remote
	switch cfg.Backend {
	case config.BackendHTTP:
		client := remote.DefaultClientConfig(cfg.URL)
		client.Token = cfg.Token
		client.Timeout = cfg.Timeout
		client.RetryMax = cfg.Retries
		c, err := remote.NewClient(client,
			remote.WithClientLogger(s.logger),
			remote.WithClientMetrics(s.metrics))
		if err != nil {
			return nil, err
		}
		s.logger.Info("Remote layout store over HTTP", zap.String("url", cfg.URL))
		return c, nil
	case config.BackendSQLite:
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = root.StoreDB()
		}
		store, err := remote.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open remote store: %w", err)
		}
		s.closers = append(s.closers, store)
		s.logger.Info("Remote layout store in SQLite", zap.String("path", dbPath))
		return store, nil
	default:
		s.logger.Info("Remote layout store disabled")
		return nil, nil
	}
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.Logger(s.logger))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(s.config.Server.AllowedOrigins)))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.config.RateLimit.RequestsPerSecond,
			Burst:             s.config.RateLimit.Burst,
			IdleTimeout:       10 * time.Minute,
		}))
	}

	apihttp.NewHandlers(s.sessions, s.registry, s.metrics, s.logger).Register(router)
	ws.NewHandler(s.sessions, s.config.Server.AllowedOrigins, s.metrics, s.logger).Register(router)

	// A server holding the store itself also serves it to other instances
	if store, ok := s.remote.(*remote.SQLiteStore); ok {
		apihttp.NewStoreHandlers(store, s.logger).Register(router)
	}

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the workspace session manager
func (s *Server) Sessions() *workspace.Manager {
	return s.sessions
}

// Run starts background work and serves HTTP until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startWatcher(bg)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
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

	shutdownCtx, done := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer done()
	return multierr.Append(serveErr, s.Close(shutdownCtx))
}

func (s *Server) startWatcher(ctx context.Context) {
	if !s.config.Registry.Watch {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.seeder.Watch(ctx); err != nil {
			s.logger.Warn("Module manifest watcher stopped", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down the server: stop accepting requests, flush
// every workspace, then release storage
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if err := s.sessions.Close(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("workspace sessions: %w", err))
	}
	errs = multierr.Append(errs, s.closeResources())

	// Sync logger before exit
	_ = s.logger.Sync()
	return errs
}

func (s *Server) closeResources() error {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errs
}
