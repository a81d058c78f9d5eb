// Package httpapi serves anypod's public feed/media surface and its admin
// control surface (spec §6.9) on a single echo.Echo instance, the way the
// teacher composes its own API server from per-area Handlers.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/coordinator"
	"github.com/thurstonsan/anypod/internal/manualsubmission"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/scheduler"
	"github.com/thurstonsan/anypod/internal/store"
)

// version is anypod's reported build version (spec §6.3's health payload).
const version = "0.1.0"

// Server owns the echo instance and every registered handler group.
type Server struct {
	echo   *echo.Echo
	db     *sql.DB
	logger zerolog.Logger
}

// Deps bundles everything the public and admin handler groups need.
type Deps struct {
	DB          *sql.DB
	Feeds       *store.FeedStore
	Downloads   *store.DownloadStore
	Paths       *pathmanager.PathManager
	Coordinator *coordinator.Coordinator
	Runner      *scheduler.ManualRunner
	Submission  *manualsubmission.Service
	FeedConfigs map[string]config.FeedConfig
	Logger      zerolog.Logger
}

func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, db: deps.DB, logger: deps.Logger.With().Str("component", "httpapi").Logger()}
	s.setupMiddleware()
	s.setupRoutes(deps)
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogError:   true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Info()
			if v.Error != nil {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{Level: 5}))
}

func (s *Server) setupRoutes(deps Deps) {
	s.echo.GET("/api/health", s.healthCheck)

	public := NewPublicHandlers(deps.Paths, deps.Logger)
	public.RegisterRoutes(s.echo)

	admin := NewAdminHandlers(deps.Feeds, deps.Downloads, deps.Paths, deps.Coordinator, deps.Runner, deps.Submission, deps.FeedConfigs, deps.Logger)
	admin.RegisterRoutes(s.echo.Group("/admin"))
}

// healthResponse is spec §6.3's literal GET /api/health body.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// healthCheck reports healthy/unhealthy based on a live database ping,
// degrading to 503 on failure (spec §6.3).
func (s *Server) healthCheck(c echo.Context) error {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "anypod",
		Version:   version,
	}

	if s.db == nil {
		return c.JSON(http.StatusOK, resp)
	}

	if err := s.db.PingContext(c.Request().Context()); err != nil {
		resp.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting http server")
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
