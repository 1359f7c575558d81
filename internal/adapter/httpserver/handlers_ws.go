package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/websocket"
	"github.com/AlphaB135/scg-noti-sub001/internal/broadcast"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/correlation"
	apperrors "github.com/AlphaB135/scg-noti-sub001/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	closeReasonTooMany    = "too many connections"
	inboundRateLimitError = "rate limit exceeded"
)

func (s *Server) registerWebSocketRoutes() {
	s.echo.GET(s.config.WebSocketPath, s.handleWebSocket)
}

// handleWebSocket upgrades the request, registers the socket with the hub and
// routes client frames until the socket closes.
func (s *Server) handleWebSocket(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()

	if !websocket.IsUpgradeRequest(req) {
		return apperrors.ValidationError("websocket upgrade required").
			WithContext("path", req.URL.Path)
	}

	wsConn, err := s.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		// The upgrader has already written the rejection status.
		slog.DebugContext(ctx, "WebSocket upgrade rejected", "error", err, "remote_addr", c.RealIP())
		return nil
	}

	socket := broadcast.NewSocket(wsConn, broadcast.SocketOptions{
		SendBuffer:   s.config.SendBufferSize,
		WriteTimeout: s.config.WriteTimeout,
	})
	socket.OnPong(func() { s.hub.MarkAlive(socket.ID()) })

	userID := c.QueryParam("userId")
	ctx = correlation.WithConnection(ctx, socket.ID().String())
	log := slog.With("user_id", userID)

	if err := s.hub.Register(socket, userID); err != nil {
		log.WarnContext(ctx, "WebSocket registration failed", "error", err)
		if errors.Is(err, broadcast.ErrTooManyConnections) {
			_ = socket.CloseGracefully(closeReasonTooMany)
		} else {
			_ = socket.Close()
		}
		return nil
	}
	defer func() {
		s.hub.Unregister(socket.ID())
		_ = socket.Close()
	}()

	log.InfoContext(ctx, "WebSocket client connected", "remote_addr", c.RealIP())

	limiter := rate.NewLimiter(rate.Limit(s.config.InboundRateLimit), s.config.InboundBurst)
	err = socket.ReadLoop(func(data []byte) {
		if !limiter.Allow() {
			if err := s.router.ReplyError(socket, inboundRateLimitError); err != nil {
				log.DebugContext(ctx, "Failed to send rate limit reply", "error", err)
			}
			return
		}
		if err := s.router.Route(ctx, socket, data); err != nil {
			log.DebugContext(ctx, "Failed to send reply", "error", err)
		}
	})
	if err != nil {
		log.InfoContext(ctx, "WebSocket client disconnected", "error", err)
	} else {
		log.InfoContext(ctx, "WebSocket client disconnected")
	}

	// The connection was hijacked; the request logger reports this status.
	c.Response().Status = http.StatusSwitchingProtocols
	return nil
}
