// Package server runs a local stand-in for the optimization backend. It
// speaks the same /api/v1 contract as the real service and fakes completion
// and job results.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"optiflow/internal/config"
	"optiflow/internal/jobstore"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg      config.Config
	store    *jobstore.Store
	validate *validator.Validate
	app      *echo.Echo
	address  string

	// jobCtx bounds background job processing to the server's lifetime.
	jobCtx    context.Context
	cancelJob context.CancelFunc
	workers   sync.WaitGroup
}

// New constructs the stub backend wired with routing and middleware.
func New(cfg config.Config, store *jobstore.Store) (*Server, error) {
	if store == nil {
		return nil, errors.New("job store must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))

	jobCtx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		cfg:       cfg,
		store:     store,
		validate:  newValidator(),
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Stub.Port),
		jobCtx:    jobCtx,
		cancelJob: cancel,
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Close stops background job processing and waits for it to exit.
func (s *Server) Close() {
	s.cancelJob()
	s.workers.Wait()
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Stub.Port)
	slog.Info("starting stub backend", "addr", s.address, "job_delay", s.cfg.Stub.JobDelay)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	defer s.Close()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("stub backend shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	api := s.app.Group("/api/v1")
	api.GET("/ping", s.handlePing)
	api.POST("/completion", s.handleCompletion)
	api.POST("/optimize", s.handleOptimize)
	api.GET("/job/:id", s.handleJobStatus)
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("optiflow stub backend ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/v1/ping")
	fmt.Println("  POST /api/v1/completion")
	fmt.Println("  POST /api/v1/optimize")
	fmt.Println("  GET  /api/v1/job/:id")
	fmt.Printf("Point the client at it with:\n  OPTIFLOW_API_BASE=http://%s:%d optiflow ping\n\n", host, port)
}
