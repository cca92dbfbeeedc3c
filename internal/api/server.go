// Package api provides the REST management API for dnstp.
// It exposes health, statistics, session inspection, the download outbox and
// the upload journal via a Gin-based HTTP server, plus Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnstp/internal/api/handlers"
	"github.com/jroosing/dnstp/internal/api/middleware"
	"github.com/jroosing/dnstp/internal/config"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the runtime components the API reads from.
type Deps struct {
	Registry *session.Registry
	Store    *store.Store         // optional
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

// Server is the management REST API server.
//
// Security note: the outbox endpoint feeds data to tunnel clients. Do not
// expose the API to untrusted networks without an API key.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	handler    *handlers.Handler
	httpServer *http.Server
}

func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}
	if deps.Registry == nil {
		panic("api.New: registry is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(deps.Registry, deps.Store, logger)
	RegisterRoutes(engine, h, cfg.API.APIKey, deps.Gatherer)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, handler: h, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler exposes the handlers so the runner can attach live statistics.
func (s *Server) Handler() *handlers.Handler {
	return s.handler
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("management api listening", "addr", s.Addr())
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
