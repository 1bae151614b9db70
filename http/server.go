// Package http serves the prediction API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ocorrencias/config"
)

const maxRequestBytes = 1 << 20

type Server struct {
	server *http.Server
	engine *gin.Engine
	config config.HTTPConfig
}

// NewServer builds the gin engine with the middleware chain and mounts the
// handlers. gatherer backs /metrics and may be nil.
func NewServer(cfg config.HTTPConfig, handlers *Handlers, gatherer prometheus.Gatherer) *Server {
	engine := gin.New()
	engine.Use(
		RecoveryMiddleware(),
		LoggerMiddleware(),
		SecurityHeadersMiddleware(),
		CORSMiddleware(),
		RequestSizeMiddleware(maxRequestBytes),
	)
	handlers.Register(engine)
	if gatherer != nil {
		engine.GET("/metrics", prometheusHandler(gatherer))
	}

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      engine,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		engine: engine,
		config: cfg,
	}
}

func prometheusHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	zap.S().Infow("starting HTTP server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zap.S().Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}
