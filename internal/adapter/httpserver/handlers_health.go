package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/AlphaB135/scg-noti-sub001/internal/platform/errors"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/version"
	"github.com/labstack/echo/v4"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second
)

// HealthCheck verifies one optional dependency (Redis, Postgres).
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checksResponse struct {
	Status string   `json:"status"`
	Checks []string `json:"checks"`
}

type livenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Connections   int     `json:"connections"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.dependencyChecks(startupCheckTimeout))
	s.echo.GET("/health/ready", s.dependencyChecks(readinessCheckTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/version", s.handleVersion)
}

// dependencyChecks runs the configured checks in order under one deadline. The
// first failure answers 503; later checks are skipped.
func (s *Server) dependencyChecks(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		passed := make([]string, 0, len(s.healthChecks))
		for _, hc := range s.healthChecks {
			if err := hc.Check(ctx); err != nil {
				return apperrors.UnavailableError(hc.Name+" check failed", err).
					WithContext("failed_check", hc.Name)
			}
			passed = append(passed, hc.Name)
		}

		if err := c.JSON(http.StatusOK, checksResponse{Status: "ready", Checks: passed}); err != nil {
			return fmt.Errorf("failed to write checks response: %w", err)
		}
		return nil
	}
}

// handleLiveness also asks the hub for its size, so a wedged hub actor shows
// up as a liveness timeout.
func (s *Server) handleLiveness(c echo.Context) error {
	resp := livenessResponse{
		Status:        "ok",
		UptimeSeconds: s.clock.Since(s.startTime).Seconds(),
		Connections:   s.hub.Size(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}

func (s *Server) handleConnections(c echo.Context) error {
	response := map[string]any{"connections": s.hub.Size()}

	if s.cluster != nil {
		instances, total, err := s.cluster.ClusterConnections(c.Request().Context())
		if err != nil {
			slog.WarnContext(c.Request().Context(), "Failed to read cluster connections", "error", err)
		} else {
			response["cluster"] = map[string]int{"instances": instances, "connections": total}
		}
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write connections response: %w", err)
	}
	return nil
}
