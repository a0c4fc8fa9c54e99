// ABOUTME: Server orchestrator that wires storage, the thread API and listeners
// ABOUTME: Manages HTTP and optional gRPC health servers with graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/2389/coven-threads/internal/api"
	"github.com/2389/coven-threads/internal/auth"
	"github.com/2389/coven-threads/internal/config"
	"github.com/2389/coven-threads/internal/dedupe"
	"github.com/2389/coven-threads/internal/metrics"
	"github.com/2389/coven-threads/internal/store"
	"github.com/2389/coven-threads/internal/threads"
)

// HealthService is the gRPC health service name reported alongside the
// server-wide status.
const HealthService = "coven.threads"

// Intervals for the readiness probe behind the gRPC health service.
const (
	readyTimeout        = 2 * time.Second
	healthProbeInterval = 10 * time.Second
)

// Server runs the thread service.
type Server struct {
	config     *config.Config
	backend    store.Backend
	threads    *threads.Store
	metrics    *metrics.Metrics
	dedupe     *dedupe.Cache
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// buildAuthenticator returns nil when no credential is configured.
func buildAuthenticator(cfg config.AuthConfig, logger *slog.Logger) *auth.Authenticator {
	if !cfg.Enabled() {
		logger.Warn("HTTP auth disabled - no jwt_secret or api_key configured")
		return nil
	}

	var verifier auth.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	}
	logger.Info("HTTP auth enabled", "jwt", cfg.JWTSecret != "", "api_key", cfg.APIKey != "")
	return auth.NewAuthenticator(verifier, cfg.APIKey, logger)
}

// createGRPCServer builds the gRPC server carrying only the health and
// reflection services.
func createGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)
	return server, hs
}

// New creates a Server from cfg. The storage backend is opened immediately.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	backend, err := store.Open(cfg.Storage.Driver, cfg.Storage.WorkingDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	s := &Server{
		config:  cfg,
		backend: backend,
		logger:  logger.With("component", "server"),
	}

	opts := threads.Options{Logger: logger}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(nil)
		opts.Recorder = s.metrics
	}
	s.threads = threads.New(backend, opts)

	if cfg.Idempotency.TTL > 0 {
		s.dedupe = dedupe.New(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries)
	}

	threadAPI := api.New(api.Config{
		Store:       s.threads,
		Logger:      logger,
		Auth:        buildAuthenticator(cfg.Auth, logger),
		Limiter:     api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger),
		Idempotency: s.dedupe,
		Metrics:     s.metrics,
	})

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	if s.metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, s.metrics.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	threadAPI.Register(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.GRPCAddr != "" {
		s.grpcServer, s.health = createGRPCServer()
	}

	return s, nil
}

// Handler returns the HTTP handler serving health, metrics and thread routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Threads returns the thread store backing the API.
func (s *Server) Threads() *threads.Store {
	return s.threads
}

// setupListeners opens the HTTP listener and, when configured, the gRPC one.
func (s *Server) setupListeners() (httpLn, grpcLn net.Listener, err error) {
	s.logger.Info("starting server",
		"http_addr", s.config.Server.HTTPAddr,
		"grpc_addr", s.config.Server.GRPCAddr,
		"driver", s.config.Storage.Driver,
		"working_dir", s.config.Storage.WorkingDir,
	)

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.grpcServer == nil {
		return httpLn, nil, nil
	}

	grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
	if err != nil {
		_ = httpLn.Close()
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	return httpLn, grpcLn, nil
}

// startServers starts each server in a goroutine, returning the error channel.
func (s *Server) startServers(httpLn, grpcLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if grpcLn != nil {
		go func() {
			s.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and blocks until ctx is canceled or a server fails.
// Returns nil after a graceful shutdown triggered by ctx.
func (s *Server) Run(ctx context.Context) error {
	httpLn, grpcLn, err := s.setupListeners()
	if err != nil {
		return err
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	if s.health != nil {
		go s.probeHealth(probeCtx)
	}

	errCh := s.startServers(httpLn, grpcLn)
	serverErr := s.waitForShutdownSignal(ctx, errCh)
	stopProbe()

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context bounded by the
// configured timeout, since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// probeHealth mirrors storage reachability into the gRPC health service
// until ctx is canceled.
func (s *Server) probeHealth(ctx context.Context) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	for {
		s.updateHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) updateHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.ping(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("storage health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthService, status)
}

func (s *Server) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return s.threads.Ping(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops all servers and releases storage. Calls after the first
// return the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down server")

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

		if s.grpcServer != nil {
			s.shutdownGRPCServer(ctx)
		}

		if s.dedupe != nil {
			s.dedupe.Close()
		}
		errs = appendCloseError(errs, "store close", s.backend.Close())

		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
		}
	})
	return s.shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the storage backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
