// Package server exposes the catalog over HTTP: a JSON API, the lineage
// graph page, server-sent change events and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/metrics"
	"github.com/leapstack-labs/leapmeta/internal/server/notifier"
)

// DefaultDebounce is how long the watcher waits for file events to settle.
const DefaultDebounce = 500 * time.Millisecond

// Server serves the catalog API.
type Server struct {
	engine   *engine.Engine
	sources  []config.Source
	port     int
	watch    bool
	debounce time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	notifier *notifier.Notifier
}

// Config holds configuration for the server.
type Config struct {
	Engine *engine.Engine
	// Sources are the configured sources; POST /api/collect and watch mode
	// collect them.
	Sources []config.Source
	Port    int
	Watch   bool
	// Debounce overrides DefaultDebounce.
	Debounce time.Duration
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// New creates a server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Server{
		engine:   cfg.Engine,
		sources:  cfg.Sources,
		port:     cfg.Port,
		watch:    cfg.Watch,
		debounce: debounce,
		metrics:  cfg.Metrics,
		logger:   logger,
		notifier: notifier.New(),
	}
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchSources(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
