package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/GriffinCanCode/reqtrace/internal/api/http"
	"github.com/GriffinCanCode/reqtrace/internal/api/middleware"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/interceptor"
)

// ErrClosed is returned by Reload once shutdown has begun.
var ErrClosed = errors.New("server is shutting down")

// DefaultRetireDelay is how long a replaced exporter keeps running after a
// reload, so requests that started before the swap can still export.
const DefaultRetireDelay = 5 * time.Second

// Server wraps the HTTP server and the tracing pipeline it demonstrates.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	registry   *interceptor.Registry
	tracing    *interceptor.Interceptor
	router     *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server

	retireDelay time.Duration
	retiring    sync.WaitGroup
	closing     chan struct{}
	closeOnce   sync.Once
	// reloadMu orders Reload against the start of Shutdown.
	reloadMu sync.Mutex
	mu       sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithConfigPath makes Run watch path and reload on change.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// WithLogger sets the logger. By default one is built from the config.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry sets the registry used to resolve trace components.
func WithRegistry(r *interceptor.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithRetireDelay overrides DefaultRetireDelay.
func WithRetireDelay(d time.Duration) Option {
	return func(s *Server) { s.retireDelay = d }
}

// New creates a server for cfg. Trace components are resolved immediately,
// so a bad exporter or sampler name fails here.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		registry:    interceptor.NewRegistry(),
		retireDelay: DefaultRetireDelay,
		closing:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			Service:     cfg.Server.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		s.logger = logger
	}

	s.logger.Info("Initializing reqtrace server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("sampler", cfg.Trace.Sampler),
		zap.String("exporter", cfg.Trace.Exporter),
		zap.String("propagator", cfg.Trace.Propagator),
	)

	if cfg.Metrics.Enabled {
		s.metrics = monitoring.NewMetrics()
	}

	settings, err := s.registry.Settings(cfg, s.deps())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trace settings: %w", err)
	}
	s.tracing = interceptor.New(settings,
		interceptor.WithLogger(s.logger.Logger),
		interceptor.WithMetrics(s.metrics),
	)

	s.router = s.newRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.GRPCAddr() != "" {
		s.grpcServer = s.newGRPCServer()
	}

	s.logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) deps() interceptor.Deps {
	return interceptor.Deps{Logger: s.logger.Logger, Metrics: s.metrics}
}

func (s *Server) newRouter() *gin.Engine {
	cfg := s.cfg
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Tracing(s.tracing))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(s.logger.Logger))
	if s.metrics != nil {
		router.Use(monitoring.Middleware(s.metrics))
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.CORSOrigins
	}
	router.Use(middleware.CORS(cors))

	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	api.NewHandlers(cfg.Server.ServiceName, s.logger.Logger, s.metrics).Register(router, metricsPath)
	return router
}

func (s *Server) newGRPCServer() *grpc.Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.UnaryServerInterceptor(s.tracing)),
		grpc.ChainStreamInterceptor(interceptor.StreamServerInterceptor(s.tracing)),
	)
	hs := health.NewServer()
	hs.SetServingStatus(s.cfg.Server.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Interceptor returns the tracing interceptor.
func (s *Server) Interceptor() *interceptor.Interceptor {
	return s.tracing
}

// Config returns the config currently in effect.
func (s *Server) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reload applies the trace and logging sections of cfg. Server address,
// middleware and metrics settings only take effect on restart. On error the
// previous settings stay in effect. After Shutdown has begun Reload returns
// ErrClosed without building anything.
func (s *Server) Reload(cfg *config.Config) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	select {
	case <-s.closing:
		return ErrClosed
	default:
	}

	settings, err := s.registry.Settings(cfg, s.deps())
	if err != nil {
		s.logger.Error("Reload rejected, keeping previous trace settings", zap.Error(err))
		return err
	}

	if cfg.Logging.Level != "" {
		if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
			s.logger.Warn("Ignoring invalid log level", zap.Error(err))
		}
	}

	old := s.tracing.Reconfigure(settings)

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("Trace settings reloaded",
		zap.String("sampler", settings.Sampler.Description()),
		zap.String("exporter", cfg.Trace.Exporter),
		zap.String("propagator", cfg.Trace.Propagator),
	)
	s.retire(old)
	return nil
}

// retire shuts the replaced exporter down after retireDelay, or at once if
// the server is closing.
func (s *Server) retire(old *interceptor.Settings) {
	if old == nil || old.Exporter == nil {
		return
	}
	s.retiring.Add(1)
	go func() {
		defer s.retiring.Done()

		timer := time.NewTimer(s.retireDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.closing:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		if err := old.Exporter.Shutdown(ctx); err != nil {
			s.logger.Warn("Failed to shut down replaced exporter", zap.Error(err))
		}
	}()
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// gracefully. Every exit path, including a failed gRPC listen, goes through
// Shutdown.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var grpcLis net.Listener
	if s.grpcServer != nil {
		addr := s.Config().Server.GRPCAddr()
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			err = fmt.Errorf("failed to listen on %s: %w", addr, err)
			return errors.Join(err, s.shutdownWithTimeout())
		}
		grpcLis = lis
	}

	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcLis != nil {
		go func() {
			s.logger.Info("Starting gRPC server", zap.String("addr", grpcLis.Addr().String()))
			if err := s.grpcServer.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	watchDone := make(chan struct{})
	if s.configPath != "" {
		w := config.NewWatcher(s.configPath, 0, s.logger.Logger)
		go func() {
			defer close(watchDone)
			err := w.Watch(ctx, func(cfg *config.Config) {
				_ = s.Reload(cfg)
			})
			if err != nil {
				s.logger.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	// No reload may start once the exporters are being drained.
	cancel()
	<-watchDone

	if err := s.shutdownWithTimeout(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Server) shutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, waits for in-flight ones and then
// flushes and closes every exporter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	s.reloadMu.Lock()
	s.closeOnce.Do(func() { close(s.closing) })
	s.reloadMu.Unlock()
	s.retiring.Wait()

	if err := s.tracing.Settings().Exporter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("exporter shutdown: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) shutdownTimeout() time.Duration {
	if d := s.Config().Server.ShutdownTimeout.Duration; d > 0 {
		return d
	}
	return 10 * time.Second
}
