package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/websocket"
	"github.com/AlphaB135/scg-noti-sub001/internal/broadcast"
	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/config"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// connectionHub is the part of broadcast.Hub the server drives.
type connectionHub interface {
	Register(conn broadcast.Conn, userID string) error
	Unregister(id uuid.UUID)
	MarkAlive(id uuid.UUID)
	Size() int
}

// clusterView reports connection totals across every running instance.
type clusterView interface {
	ClusterConnections(ctx context.Context) (instances, connections int, err error)
}

// Dependencies are the collaborators a Server is built from. Metrics and
// Clock may be nil.
type Dependencies struct {
	Hub          connectionHub
	Router       *broadcast.Router
	Publisher    domain.NotificationPublisher
	Metrics      *metrics.Set
	Cluster      clusterView
	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	hub       connectionHub
	router    *broadcast.Router
	publisher domain.NotificationPublisher
	cluster   clusterView
	upgrader  *gorillaws.Upgrader
	metrics   *metrics.Set
	clock     clockwork.Clock

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Hub == nil || deps.Publisher == nil {
		return nil, fmt.Errorf("hub and publisher are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewSet()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Router == nil {
		router, err := broadcast.NewRouter(deps.Metrics.WebSocket)
		if err != nil {
			return nil, err
		}
		deps.Router = router
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		hub:       deps.Hub,
		router:    deps.Router,
		publisher: deps.Publisher,
		cluster:   deps.Cluster,
		upgrader: websocket.NewUpgrader(websocket.OriginPolicy{
			AppURL:         cfg.AppURL,
			AllowedOrigins: cfg.AllowedOrigins,
			IsDevelopment:  cfg.IsDevelopment(),
		}),
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		healthChecks: deps.HealthChecks,
		startTime:    deps.Clock.Now(),
	}

	e.HTTPErrorHandler = srv.handleHTTPError
	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "ws_path", s.config.WebSocketPath)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
