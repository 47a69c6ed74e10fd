package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds in-flight requests and hooks on shutdown
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownHook runs after the listener stops accepting requests
type ShutdownHook func(ctx context.Context) error

// GracefulShutdown serves until its context ends, then drains requests and
// runs the registered hooks in registration order
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook
}

// NewGracefulShutdown creates a GracefulShutdown. A non-positive timeout
// uses DefaultShutdownTimeout.
func NewGracefulShutdown(server *Server, timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulShutdown{
		server:  server,
		timeout: timeout,
		logger:  logger.Named("shutdown"),
	}
}

// RegisterHook registers a hook to run during shutdown
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run listens, serves and blocks until ctx is done or serving fails. Hooks
// run in both cases; a failing hook is logged and the rest still run.
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- gs.server.Serve() }()

	var serveErr error
	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received", zap.Duration("timeout", gs.timeout))
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	var shutdownErr error
	if err := gs.server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		gs.logger.Error("server shutdown failed", zap.Error(err))
	}

	gs.mu.Lock()
	hooks := append([]ShutdownHook(nil), gs.hooks...)
	gs.mu.Unlock()
	for i, hook := range hooks {
		if err := hook(shutdownCtx); err != nil {
			gs.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}

	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}
