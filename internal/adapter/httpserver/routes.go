package httpserver

import (
	"log/slog"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const eventsBodyLimit = "64K"

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.metrics.HTTP.Middleware(s.config.WebSocketPath))
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.registerWebSocketRoutes()
	s.registerAPIRoutes()

	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.metrics.Registry)))
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api")
	api.GET("/connections", s.handleConnections)

	events := []echo.MiddlewareFunc{
		middleware.BodyLimit(eventsBodyLimit),
		newRateLimiter(s.config.EventsAPIRateLimit, max(1, int(s.config.EventsAPIRateLimit))),
	}
	if s.config.EventsAPIToken != "" {
		events = append(events, newBearerAuth(s.config.EventsAPIToken))
	}
	api.POST("/notifications/events", s.handlePublishEvent, events...)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
