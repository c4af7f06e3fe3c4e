package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/logging"
)

// Config holds the server configuration
type Config struct {
	Listen  string // e.g. ":8080"
	HTTPLog bool   // log every request
}

// Server exposes the controllers over HTTP
type Server struct {
	config      Config
	logger      *zap.Logger
	controllers []*climate.Controller
	bySerial    map[string]*climate.Controller
	registry    *prometheus.Registry
	collectors  []*climate.MetricsCollector
	hub         *Hub
	echo        *echo.Echo
	httpServer  *http.Server
	unsubs      []func()
}

// New creates a server for already started controllers
func New(config Config, controllers []*climate.Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = logging.Named("server")
	}
	s := &Server{
		config:      config,
		logger:      logger,
		controllers: controllers,
		bySerial:    make(map[string]*climate.Controller, len(controllers)),
		registry:    prometheus.NewRegistry(),
		hub:         NewHub(logger.Named("ws")),
	}

	for _, c := range controllers {
		serial := c.Status().Serial
		s.bySerial[serial] = c

		collector := climate.NewMetricsCollector(c)
		prometheus.WrapRegistererWith(prometheus.Labels{"device": serial}, s.registry).MustRegister(collector)
		s.collectors = append(s.collectors, collector)

		s.unsubs = append(s.unsubs, c.Subscribe(func(status climate.Status) {
			s.hub.BroadcastStatus(status)
		}))
	}
	s.hub.SetSnapshot(s.snapshot)

	s.echo = s.RegisterRoutes()
	s.httpServer = &http.Server{
		Addr:         config.Listen,
		Handler:      s.echo,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Registry returns the Prometheus registry served on /metrics
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.config.Listen))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown closes websocket clients and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	for _, unsubscribe := range s.unsubs {
		unsubscribe()
	}
	s.unsubs = nil
	for _, collector := range s.collectors {
		collector.Close()
	}
	s.hub.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) snapshot() []climate.Status {
	out := make([]climate.Status, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c.Status())
	}
	return out
}
