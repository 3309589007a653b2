// Package server exposes the cached disposal schedule over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mskaar/renovasjon/internal/coordinator"
	"github.com/mskaar/renovasjon/internal/models"
	middleware "github.com/mskaar/renovasjon/internal/server/middlewares"
)

// ScheduleProvider is the coordinator surface the handlers read from.
// Handlers never perform upstream I/O themselves; Refresh delegates to the
// coordinator's coalesced fetch.
type ScheduleProvider interface {
	Snapshot() *models.ScheduleSnapshot
	Status() coordinator.Status
	Refresh(ctx context.Context) (*models.ScheduleSnapshot, error)
	SnapshotVersion() uint64
	AddressID() string
}

// Config holds configuration options for the HTTP server.
type Config struct {
	ListenAddr     string
	CacheSize      int     // Size of the LRU response cache
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting

	// Today supplies the current calendar date for projections and cache
	// keying. Nil means models.Today; tests override it to pin the clock.
	Today func() models.Date
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "0.0.0.0:8080",
		CacheSize:      256,
		RateLimit:      5.0,
		RateLimitBurst: 10,
	}
}

// Server bundles the router and its dependencies.
type Server struct {
	cfg      Config
	provider ScheduleProvider
	logger   *logrus.Logger
	engine   *gin.Engine
	today    func() models.Date
}

// Setup initializes the server with the full middleware chain. registry
// may be nil, in which case a fresh one is used.
func Setup(cfg Config, provider ScheduleProvider, logger *logrus.Logger, registry *prometheus.Registry) (*Server, error) {
	if cfg.CacheSize <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if err := middleware.InitializeCache(cfg.CacheSize); err != nil {
		return nil, err
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	collectors := []prometheus.Collector{
		middleware.Requests,
		middleware.Latency,
		coordinator.FetchSuccesses,
		coordinator.FetchFailures,
		coordinator.LastSuccessTimestamp,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.ContextMiddleware())
	engine.Use(middleware.RateLimitingMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)))
	engine.Use(middleware.LoggingMiddleware(logger))
	engine.Use(middleware.MetricsMiddleware())

	today := cfg.Today
	if today == nil {
		today = models.Today
	}

	server := &Server{cfg: cfg, provider: provider, logger: logger, engine: engine, today: today}
	server.registerRoutes(registry)
	return server, nil
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Projection responses change with the snapshot and with the calendar
	// date, so cache entries are keyed on both. An entry written just
	// before midnight is a miss right after it.
	cached := middleware.CachingMiddleware(s.provider.SnapshotVersion, s.today)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/fractions", cached, s.handleListFractions)
		v1.GET("/fractions/:fraction", cached, s.handleGetFraction)
		v1.GET("/calendar", cached, s.handleCalendar)
		v1.GET("/calendar.ics", cached, s.handleCalendarICS)
		v1.GET("/status", s.handleStatus)
		v1.POST("/refresh", s.handleRefresh)
	}
}
