// Package api serves a tax-benefit system over HTTP: metadata about its
// parameters, variables and entities, and calculations on situations
// posted as JSON.
//
// Routes:
//
//	GET  /parameters         every leaf parameter
//	GET  /parameter/*path    one parameter, slash- or dot-separated
//	GET  /variables          every variable
//	GET  /variable/:name     one variable with its formulas
//	GET  /entities           entities and roles
//	POST /calculate          fills the null values of a situation
//	POST /trace              same, returning the computation trace
//	GET  /spec               OpenAPI document of the system
//	GET  /metrics            Prometheus metrics
//
// Failures answer {"error": message} or {"error": {path: message}}.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim"
)

// Config holds the server settings.
type Config struct {
	Addr            string               `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration        `yaml:"shutdown_timeout" validate:"gte=0"`
	Simulation      sim.SimulationConfig `yaml:"simulation"`
}

// DefaultConfig listens on localhost:5000.
func DefaultConfig() Config {
	return Config{
		Addr:            "localhost:5000",
		ShutdownTimeout: 5 * time.Second,
		Simulation:      sim.DefaultSimulationConfig(),
	}
}

var configValidate = validator.New()

// Validate checks the settings.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return c.Simulation.Validate()
}

// Server answers HTTP requests against the current system. The system can
// be swapped while serving.
type Server struct {
	cfg      Config
	system   atomic.Pointer[sim.TaxBenefitSystem]
	engine   *gin.Engine
	registry *prometheus.Registry
	metrics  *metrics
}

// New builds the server and its routes.
func New(system *sim.TaxBenefitSystem, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, registry: prometheus.NewRegistry()}
	s.system.Store(system)
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = newMetrics(s.registry)

	r := gin.New()
	r.Use(gin.Recovery(), s.metrics.middleware())
	r.GET("/parameters", s.handleParameters)
	r.GET("/parameter/*path", s.handleParameter)
	r.GET("/variables", s.handleVariables)
	r.GET("/variable/:name", s.handleVariable)
	r.GET("/entities", s.handleEntities)
	r.POST("/calculate", s.handleCalculate)
	r.POST("/trace", s.handleTrace)
	r.GET("/spec", s.handleSpec)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no route %s %s", c.Request.Method, c.Request.URL.Path)})
	})
	s.engine = r
	return s, nil
}

// System is the system currently served.
func (s *Server) System() *sim.TaxBenefitSystem { return s.system.Load() }

// SetSystem swaps the served system. Requests in flight keep the previous one.
func (s *Server) SetSystem(system *sim.TaxBenefitSystem) { s.system.Store(system) }

// Handler exposes the routes, e.g. to httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logrus.Infof("serving %s on %s", s.System().Name, s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
